package sim

import (
	"errors"
	"fmt"
	"time"
)

const (
	MaxNoiseStdDev = 10
)

/*
	simConfig := sim.Config{
		Serial:           "sim-1",
		PPSPeriod:        time.Second,
		PPSJitter:        20 * time.Nanosecond,
		PropagationDelay: 925e-9,
		Emitter: sim.EmitterConfig{
			BurstPeriod: time.Millisecond,
			BurstLength: 100 * time.Microsecond,
			Bandwidth:   10e6,
		},
	}
*/

// Config describes a simulated receiver: its reference edges, the emitter it observes and
// the faults it injects into the sample stream.
type Config struct {
	Serial   string `yaml:"serial" json:"serial"`
	Realtime bool   `yaml:"realtime" json:"realtime"` // Pace the simulation with the host clock

	PPSPeriod time.Duration `yaml:"ppsPeriod" json:"ppsPeriod" default:"1s"` // Reference edge period
	PPSPhase  time.Duration `yaml:"ppsPhase" json:"ppsPhase"`                // First edge after simulation start
	PPSJitter time.Duration `yaml:"ppsJitter" json:"ppsJitter"`              // Standard deviation of edge timing

	LockAfter int `yaml:"lockAfter" json:"lockAfter"` // Lock sensor reads before reporting a lock, -1 never locks

	PropagationDelay float64 `yaml:"propagationDelay" json:"propagationDelay"`      // Emitter to antenna, seconds
	Amplitude        float64 `yaml:"amplitude" json:"amplitude" default:"1"`        // Received emitter amplitude
	NoiseStdDev      float64 `yaml:"noiseStdDev" json:"noiseStdDev" default:"0.05"` // Per-component noise
	Seed             int64   `yaml:"seed" json:"seed" default:"1"`                  // Noise and jitter seed

	OverflowEvery int   `yaml:"overflowEvery" json:"overflowEvery"` // Every n-th receive call overflows
	OverflowCalls []int `yaml:"overflowCalls" json:"overflowCalls"` // Receive calls (1-based) that overflow
	FailAtCall    int   `yaml:"failAtCall" json:"failAtCall"`       // Receive call (1-based) that fails fatally

	Emitter EmitterConfig `yaml:"emitter" json:"emitter"`
}

func (c *Config) Validate() error {
	if c.PPSPeriod <= 0 {
		return fmt.Errorf("sim.Config: PPS period must be positive: %s given", c.PPSPeriod)
	}

	if c.PPSPhase < 0 || c.PPSPhase >= c.PPSPeriod {
		return fmt.Errorf("sim.Config: PPS phase must be within one period: %s given", c.PPSPhase)
	}

	if c.PPSJitter < 0 || c.PPSJitter*10 > c.PPSPeriod {
		return fmt.Errorf("sim.Config: PPS jitter must be between 0 and a tenth of the period: %s given", c.PPSJitter)
	}

	if c.LockAfter < -1 {
		return fmt.Errorf("sim.Config: lock after must be -1 or more: %d given", c.LockAfter)
	}

	if c.Amplitude < 0 {
		return fmt.Errorf("sim.Config: amplitude cannot be negative: %g given", c.Amplitude)
	}

	if c.NoiseStdDev < 0 || c.NoiseStdDev > MaxNoiseStdDev {
		return fmt.Errorf("sim.Config: noise standard deviation must be between 0 and %d: %g given", MaxNoiseStdDev, c.NoiseStdDev)
	}

	if c.OverflowEvery < 0 || c.FailAtCall < 0 {
		return errors.New("sim.Config: fault schedule cannot be negative")
	}

	if c.OverflowEvery == 1 {
		return errors.New("sim.Config: overflowing every receive call never delivers samples")
	}

	for _, call := range c.OverflowCalls {
		if call <= 0 {
			return fmt.Errorf("sim.Config: overflow calls are 1-based: %d given", call)
		}
	}

	return c.Emitter.Validate()
}

// EmitterConfig describes the transmitter every simulated receiver observes. Bursts are
// linear chirps whose start frequency and sweep direction change from burst to burst.
type EmitterConfig struct {
	BurstPeriod time.Duration `yaml:"burstPeriod" json:"burstPeriod" default:"1ms"`
	BurstLength time.Duration `yaml:"burstLength" json:"burstLength" default:"100us"`
	Bandwidth   float64       `yaml:"bandwidth" json:"bandwidth" default:"10000000"`
	Seed        int64         `yaml:"seed" json:"seed" default:"7"`
}

func (c *EmitterConfig) Validate() error {
	if c.BurstPeriod <= 0 {
		return fmt.Errorf("sim.EmitterConfig: burst period must be positive: %s given", c.BurstPeriod)
	}

	if c.BurstLength <= 0 || c.BurstLength > c.BurstPeriod {
		return fmt.Errorf("sim.EmitterConfig: burst length must be within the burst period: %s given", c.BurstLength)
	}

	if c.Bandwidth <= 0 {
		return fmt.Errorf("sim.EmitterConfig: bandwidth must be positive: %g given", c.Bandwidth)
	}

	return nil
}

// DefaultConfig returns a noiseless-edge receiver observing the default emitter
func DefaultConfig(serial string) Config {
	return Config{
		Serial:      serial,
		PPSPeriod:   time.Second,
		Amplitude:   1,
		NoiseStdDev: 0.05,
		Seed:        1,
		Emitter: EmitterConfig{
			BurstPeriod: time.Millisecond,
			BurstLength: 100 * time.Microsecond,
			Bandwidth:   10e6,
			Seed:        7,
		},
	}
}
