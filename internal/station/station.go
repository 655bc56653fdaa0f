// Package station describes one receiver site and opens its receiver backend.
package station

import (
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"

	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
	"github.com/JYK2001/tdoa-gpsdo/internal/sdr/sim"
)

const (
	BackendSim = sim.Device
)

// Config is one receiver of a capture run
type Config struct {
	Name     string             `yaml:"name" json:"name" validate:"required"`
	Backend  string             `yaml:"backend" json:"backend" default:"sim" validate:"oneof=sim"`
	Output   string             `yaml:"output" json:"output"` // Sample file name, defaults to <run>_<name>.cf32
	Receiver sdr.ReceiverConfig `yaml:"receiver" json:"receiver"`
	Sim      sim.Config         `yaml:"sim" json:"sim"`
}

// SetDefaults is called by defaults.Set
func (c *Config) SetDefaults() {
	if defaults.CanUpdate(c.Sim.Serial) {
		c.Sim.Serial = c.Name
	}
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("station.Config: name is required")
	}

	if err := c.Receiver.Validate(); err != nil {
		return fmt.Errorf("station %s: %w", c.Name, err)
	}

	switch c.Backend {
	case BackendSim:
		if err := c.Sim.Validate(); err != nil {
			return fmt.Errorf("station %s: %w", c.Name, err)
		}
	default:
		return fmt.Errorf("station %s: unknown backend '%s'", c.Name, c.Backend)
	}

	return nil
}

// Open creates the receiver of the station together with the host clock its session must
// poll with. Simulated receivers opened with the same epoch observe the same reference edges
// and the same emitter; unless Realtime is set, each gets its own virtual clock starting at
// epoch.
func Open(c *Config, epoch time.Time) (sdr.Receiver, sdr.Clock, error) {
	switch c.Backend {
	case BackendSim:
		var clock sdr.Clock = sdr.SystemClock{}
		if !c.Sim.Realtime {
			clock = sim.NewVirtualClock(epoch)
		}

		rx, err := sim.New(c.Sim, clock, sim.WithEpoch(epoch))
		if err != nil {
			return nil, nil, fmt.Errorf("creating simulated receiver %s: %w", c.Name, err)
		}
		return rx, clock, nil

	default:
		return nil, nil, fmt.Errorf("creating receiver %s: unknown backend '%s'", c.Name, c.Backend)
	}
}
