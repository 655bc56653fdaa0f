package app

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JYK2001/tdoa-gpsdo/internal/config"
	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
	"github.com/JYK2001/tdoa-gpsdo/internal/station"
)

// Config represents the PPS check configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Station  station.Config `yaml:"station"`
	Jitter   JitterConfig   `yaml:"jitter"`
	Output   string         `yaml:"output"`  // CSV file with one row per edge, empty disables
	Metrics  string         `yaml:"metrics"` // Prometheus textfile, empty disables
}

type Settings struct {
	LogLevel string `yaml:"logLevel" default:"info" validate:"oneof=debug info warn error"`
}

type JitterConfig struct {
	Count        int           `yaml:"count" default:"100" validate:"gte=1"`
	Period       time.Duration `yaml:"period" default:"1s" validate:"gt=0"`
	EdgeTimeout  time.Duration `yaml:"edgeTimeout" default:"2s" validate:"gt=0"`
	PollInterval time.Duration `yaml:"pollInterval" default:"50us" validate:"gt=0"`
	LockAttempts int           `yaml:"lockAttempts" default:"10" validate:"gte=1"`
	LockInterval time.Duration `yaml:"lockInterval" default:"1s" validate:"gt=0"`
}

func (c *JitterConfig) Options() sdr.JitterOptions {
	return sdr.JitterOptions{
		Count:         c.Count,
		NominalPeriod: c.Period.Seconds(),
		EdgeTimeout:   c.EdgeTimeout,
		PollInterval:  c.PollInterval,
	}
}

func (c *Config) Validate() error {
	if err := c.Station.Validate(); err != nil {
		return err
	}
	opts := c.Jitter.Options()
	return opts.Validate()
}

func NewConfig() *Config {
	return &Config{
		Station: station.Config{Name: "rx-a", Backend: station.BackendSim},
	}
}

func NewConfigFromCLI(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ppscheck", flag.ContinueOnError)

	var (
		configPath, output, metrics, logLevel string
		count                                 int
	)
	fs.StringVar(&configPath, "c", "", "Path to the configuration file")
	fs.IntVar(&count, "n", 0, "Number of edge intervals to measure")
	fs.StringVar(&output, "o", "", "CSV file for per-edge results")
	fs.StringVar(&metrics, "metrics", "", "Path to a Prometheus textfile to write")
	fs.StringVar(&logLevel, "log-level", "", "Log level [debug, info, warn, error]")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c := NewConfig()
	if configPath != "" {
		p, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
		c = &Config{}
		if err = yaml.Unmarshal(p, c); err != nil {
			return nil, fmt.Errorf("parsing configuration: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			c.Jitter.Count = count
		case "o":
			c.Output = output
		case "metrics":
			c.Metrics = metrics
		case "log-level":
			c.Settings.LogLevel = logLevel
		}
	})

	if err := config.Prepare(c); err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}
