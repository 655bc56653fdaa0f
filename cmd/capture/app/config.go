package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/JYK2001/tdoa-gpsdo/internal/config"
	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
	"github.com/JYK2001/tdoa-gpsdo/internal/station"
)

const (
	// CatalogDisabled turns the capture catalog off when used as storage.catalog
	CatalogDisabled = "none"

	defaultReceiver = "rx-a"
)

// Config represents the capture configuration
type Config struct {
	Settings  Settings         `yaml:"settings"`
	Sync      SyncConfig       `yaml:"sync"`
	Capture   CaptureConfig    `yaml:"capture"`
	Receivers []station.Config `yaml:"receivers" validate:"min=1,max=2,unique=Name,dive"`
	Storage   StorageConfig    `yaml:"storage"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel" default:"info" validate:"oneof=debug info warn error"`
}

// SyncConfig controls the time synchronization handshake of every receiver
type SyncConfig struct {
	Skip         bool          `yaml:"skip"`
	Baseline     float64       `yaml:"baseline"`
	SettleDelay  time.Duration `yaml:"settleDelay" default:"1s" validate:"gte=0"`
	FutureOffset float64       `yaml:"futureOffset"`
	EdgeTimeout  time.Duration `yaml:"edgeTimeout" default:"2s" validate:"gt=0"`
	PollInterval time.Duration `yaml:"pollInterval" default:"1ms" validate:"gt=0"`
	Attempts     int           `yaml:"attempts" default:"1" validate:"gte=1"`

	WaitLock     bool          `yaml:"waitLock"`
	LockAttempts int           `yaml:"lockAttempts" default:"10" validate:"gte=1"`
	LockInterval time.Duration `yaml:"lockInterval" default:"1s" validate:"gt=0"`
}

func (c *SyncConfig) Options() sdr.SyncOptions {
	return sdr.SyncOptions{
		Baseline:     c.Baseline,
		SettleDelay:  c.SettleDelay,
		FutureOffset: c.FutureOffset,
		EdgeTimeout:  c.EdgeTimeout,
		PollInterval: c.PollInterval,
	}
}

// CaptureConfig bounds one capture. Exactly one of NumSamples and Duration is set.
type CaptureConfig struct {
	NumSamples              int           `yaml:"numSamples" validate:"required_without=Duration,excluded_with=Duration,gte=0"`
	Duration                time.Duration `yaml:"duration" validate:"gte=0"`
	BufferCapacity          int           `yaml:"bufferCapacity" default:"32768" validate:"gt=0"`
	PerCallTimeout          time.Duration `yaml:"perCallTimeout" default:"1s" validate:"gt=0"`
	MaxConsecutiveOverflows *int          `yaml:"maxConsecutiveOverflows" default:"1000" validate:"required,gte=0"`
}

// Options converts the configuration for a receiver sampling at sampleRate
func (c *CaptureConfig) Options(sampleRate float64) sdr.CaptureOptions {
	n := c.NumSamples
	if c.Duration > 0 {
		n = sdr.SamplesFor(c.Duration, sampleRate)
	}

	return sdr.CaptureOptions{
		NumSamples:     n,
		BufferCapacity: c.BufferCapacity,
		PerCallTimeout: c.PerCallTimeout,
	}
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory" default:"data"`
	Catalog       string `yaml:"catalog" default:"catalog.sqlite"` // Relative to the data directory, "none" disables
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Prometheus textfile, empty disables
}

// SetDefaults is called by defaults.Set
func (c *Config) SetDefaults() {
	for i := range c.Receivers {
		_ = defaults.Set(&c.Receivers[i])
	}
}

func (c *Config) Validate() error {
	for i := range c.Receivers {
		if err := c.Receivers[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig returns a configuration with a single simulated receiver
func NewConfig() *Config {
	return &Config{
		Receivers: []station.Config{{Name: defaultReceiver, Backend: station.BackendSim}},
	}
}

// LoadConfig reads a configuration file without preparing it
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var c Config
	if err = yaml.Unmarshal(p, &c); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return &c, nil
}

// NewConfigFromCLI builds the configuration from the optional -c file and command line
// overrides. Overrides apply to every receiver.
func NewConfigFromCLI(args []string) (*Config, error) {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)

	var (
		configPath, output, logLevel string
		freq, rate, gain             float64
		samples                      int
		duration                     time.Duration
	)
	fs.StringVar(&configPath, "c", "", "Path to the configuration file")
	fs.Float64Var(&freq, "freq", 0, "Center frequency in Hz")
	fs.Float64Var(&rate, "rate", 0, "Sample rate in Hz")
	fs.Float64Var(&gain, "gain", 0, "Receive gain in dB")
	fs.IntVar(&samples, "samples", 0, "Number of samples to capture")
	fs.DurationVar(&duration, "duration", 0, "Capture duration, alternative to -samples")
	fs.StringVar(&output, "o", "", "Output sample file (single receiver only)")
	fs.StringVar(&logLevel, "log-level", "", "Log level [debug, info, warn, error]")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c := NewConfig()
	if configPath != "" {
		var err error
		if c, err = LoadConfig(configPath); err != nil {
			return nil, err
		}
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "freq":
			c.eachReceiver(func(r *station.Config) { r.Receiver.CenterFrequency = freq })
		case "rate":
			c.eachReceiver(func(r *station.Config) { r.Receiver.SampleRate = rate })
		case "gain":
			c.eachReceiver(func(r *station.Config) { r.Receiver.Gain = gain })
		case "samples":
			c.Capture.NumSamples, c.Capture.Duration = samples, 0
		case "duration":
			c.Capture.NumSamples, c.Capture.Duration = 0, duration
		case "o":
			if len(c.Receivers) != 1 {
				err = errors.New("-o requires exactly one receiver")
				return
			}
			c.Receivers[0].Output = output
		case "log-level":
			c.Settings.LogLevel = logLevel
		}
	})

	if err == nil {
		err = config.Prepare(c)
	}
	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}

func (c *Config) eachReceiver(fn func(r *station.Config)) {
	for i := range c.Receivers {
		fn(&c.Receivers[i])
	}
}
