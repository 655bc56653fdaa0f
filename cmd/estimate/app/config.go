package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/JYK2001/tdoa-gpsdo/internal/correlate"
)

type Config struct {
	FileA      string
	FileB      string
	SampleRate float64 // Required for files without a sidecar
	Method     correlate.Method
	Threshold  float64
	Visualize  bool
	PlotDir    string
	DBPath     string // Catalog the measurement is stored in, optional
	Metrics    string // Prometheus textfile, optional
	LogLevel   string
}

func NewConfig() *Config {
	return &Config{
		Method:    correlate.MethodFFT,
		Threshold: correlate.DefaultConfidenceThreshold,
		PlotDir:   ".",
		LogLevel:  "info",
	}
}

func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: estimate [flags] file_a file_b\n")
		fs.PrintDefaults()
	}

	var method string
	fs.Float64Var(&c.SampleRate, "fs", 0, "Sample rate in Hz (default: from sidecars)")
	fs.StringVar(&method, "method", string(c.Method), "Correlation method [fft, direct]")
	fs.Float64Var(&c.Threshold, "threshold", c.Threshold, "Peak ratio below which the estimate is flagged")
	fs.BoolVar(&c.Visualize, "visualize", false, "Render the correlation and the aligned signals to PNG")
	fs.StringVar(&c.PlotDir, "plot-dir", c.PlotDir, "Directory for the rendered plots")
	fs.StringVar(&c.DBPath, "db", "", "Path to the catalog database to record the measurement in")
	fs.StringVar(&c.Metrics, "metrics", "", "Path to a Prometheus textfile to write")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level [debug, info, warn, error]")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if fs.NArg() != 2 {
		err = fmt.Errorf("exactly two input files are required, %d given", fs.NArg())
	} else if c.SampleRate < 0 {
		err = fmt.Errorf("invalid sample rate: %g", c.SampleRate)
	} else if c.Threshold <= 0 {
		err = errors.New("threshold must be positive")
	} else {
		c.Method, err = correlate.ParseMethod(strings.ToLower(method))
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.FileA, c.FileB = fs.Arg(0), fs.Arg(1)
	return c, nil
}
