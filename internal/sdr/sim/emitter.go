package sim

import (
	"math"
)

// Emitter produces the baseband waveform of the simulated transmitter as a function of
// absolute time. Every receiver evaluates the same emitter, delayed by its own propagation delay.
type Emitter struct {
	period    float64
	length    float64
	bandwidth float64
	seed      uint64
}

func NewEmitter(cfg EmitterConfig) *Emitter {
	return &Emitter{
		period:    cfg.BurstPeriod.Seconds(),
		length:    cfg.BurstLength.Seconds(),
		bandwidth: cfg.Bandwidth,
		seed:      uint64(cfg.Seed),
	}
}

// At returns the unit-amplitude emitter output at time t seconds
func (e *Emitter) At(t float64) complex128 {
	burst := math.Floor(t / e.period)
	u := t - burst*e.period
	if u < 0 || u >= e.length {
		return 0
	}

	// start frequency within the lower half of the band, sweep direction per burst
	b := uint64(int64(burst))
	f0 := -e.bandwidth/2 + uniform(e.seed, b, 1)*e.bandwidth/2
	slope := e.bandwidth / (2 * e.length)
	if uniform(e.seed, b, 2) < 0.5 {
		slope = -slope
		f0 += e.bandwidth / 2
	}

	phase := 2 * math.Pi * (f0*u + 0.5*slope*u*u)
	return complex(math.Cos(phase), math.Sin(phase))
}

// uniform hashes (seed, n, salt) into [0, 1)
func uniform(seed, n, salt uint64) float64 {
	return float64(splitmix64(seed^splitmix64(n^(salt<<56)))>>11) / (1 << 53)
}

// gaussian hashes (seed, n) into a standard normal deviate
func gaussian(seed, n uint64) float64 {
	u1 := uniform(seed, n, 3)
	u2 := uniform(seed, n, 4)
	if u1 == 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
