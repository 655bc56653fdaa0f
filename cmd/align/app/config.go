package app

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Inputs     []string
	OutputDir  string
	Timestamps []float64 // Declared start timestamps, one per input. Defaults to the sidecars.
	SampleRate float64   // Required for inputs without a sidecar
	SourceIDs  []string
	RunID      string // Capture run to take inputs from, a unique prefix is enough
	Catalog    string // Catalog the run is looked up in
	LogLevel   string
}

// DefaultCatalog is where the capture command keeps its catalog by default
var DefaultCatalog = filepath.Join("data", "catalog.sqlite")

func NewConfig() *Config {
	return &Config{
		Catalog:  DefaultCatalog,
		LogLevel: "info",
	}
}

func (c *Config) checkInputs() error {
	if len(c.Inputs) == 0 {
		return errors.New("at least one input file is required")
	}
	if c.Timestamps != nil && len(c.Timestamps) != len(c.Inputs) {
		return fmt.Errorf("%d timestamps given for %d files", len(c.Timestamps), len(c.Inputs))
	}
	if c.SourceIDs != nil && len(c.SourceIDs) != len(c.Inputs) {
		return fmt.Errorf("%d source IDs given for %d files", len(c.SourceIDs), len(c.Inputs))
	}
	return nil
}

// floatList is a comma separated list of floats
type floatList []float64

func (l *floatList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (l *floatList) Set(s string) error {
	*l = (*l)[:0]
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp '%s'", part)
		}
		*l = append(*l, v)
	}
	return nil
}

func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("align", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: align [flags] [file...]\n")
		fs.PrintDefaults()
	}

	var timestamps floatList
	var sourceIDs string
	fs.StringVar(&c.OutputDir, "o", "", "Output directory for the aligned recordings")
	fs.Var(&timestamps, "t", "Comma separated declared start timestamps, one per file (default: from sidecars)")
	fs.Float64Var(&c.SampleRate, "fs", 0, "Sample rate in Hz of files without a sidecar")
	fs.StringVar(&sourceIDs, "ids", "", "Comma separated source IDs of files without a sidecar (default: file names)")
	fs.StringVar(&c.RunID, "run", "", "Align the recordings of this capture run, looked up in the catalog")
	fs.StringVar(&c.Catalog, "catalog", c.Catalog, "Catalog database written by the capture command")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level [debug, info, warn, error]")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c.Inputs = fs.Args()
	c.Timestamps = timestamps
	if sourceIDs != "" {
		c.SourceIDs = strings.Split(sourceIDs, ",")
	}

	var err error
	if c.OutputDir == "" {
		err = errors.New("output directory is required")
	} else if c.SampleRate < 0 {
		err = fmt.Errorf("invalid sample rate: %g", c.SampleRate)
	} else if c.RunID == "" {
		// run inputs are only known once the catalog is read
		err = c.checkInputs()
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}
