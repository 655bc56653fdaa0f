package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
)

const Device = "sim"

var (
	// ErrClosed is returned by operations on a closed receiver
	ErrClosed = errors.New("receiver is closed")
)

// Receiver is a simulated receiver with a steerable device clock, periodic reference edges
// and a sample stream observing a shared Emitter.
//
// Time on the simulated reference axis is the host clock elapsed since New. Reference edge k
// occurs at PPSPhase + k*PPSPeriod plus a per-edge jitter derived from the seed, so receivers
// built with the same phase, period and seed observe identical edges.
type Receiver struct {
	mu sync.Mutex

	cfg     Config
	clock   sdr.Clock
	epoch   time.Time
	emitter *Emitter
	rng     *rand.Rand

	sampleRate  float64
	centerFreq  float64
	gain        float64
	clockSource sdr.ReferenceSource
	timeSource  sdr.ReferenceSource

	// device time is setVal + (tau - setTau)
	setTau float64
	setVal float64

	armed  bool
	armTau float64
	armVal float64

	latched     float64
	latchedEdge int64

	lockReads int
	closed    bool
}

// WithEpoch sets the host instant the simulated reference axis starts at. Receivers meant to
// observe the same reference edges and emitter must share one epoch. Defaults to clock.Now().
func WithEpoch(epoch time.Time) func(r *Receiver) {
	return func(r *Receiver) {
		r.epoch = epoch
	}
}

// New creates a simulated receiver driven by clock
func New(cfg Config, clock sdr.Clock, options ...func(r *Receiver)) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := Receiver{
		cfg:         cfg,
		clock:       clock,
		epoch:       clock.Now(),
		emitter:     NewEmitter(cfg.Emitter),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		clockSource: sdr.SourceInternal,
		timeSource:  sdr.SourceInternal,
		latchedEdge: -1,
	}

	for _, option := range options {
		option(&r)
	}

	return &r, nil
}

func (r *Receiver) ID() string {
	return r.cfg.Serial
}

func (r *Receiver) SetSampleRate(rate float64) error {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("invalid sample rate %g", rate)
	}
	return r.set(func() { r.sampleRate = rate })
}

func (r *Receiver) SetCenterFrequency(freq float64) error {
	return r.set(func() { r.centerFreq = freq })
}

func (r *Receiver) SetGain(gain float64) error {
	return r.set(func() { r.gain = gain })
}

func (r *Receiver) SetClockSource(src sdr.ReferenceSource) error {
	return r.set(func() { r.clockSource = src })
}

func (r *Receiver) SetTimeSource(src sdr.ReferenceSource) error {
	return r.set(func() { r.timeSource = src })
}

// SampleRate returns the configured sample rate
func (r *Receiver) SampleRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sampleRate
}

func (r *Receiver) set(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	fn()
	return nil
}

func (r *Receiver) TimeNow() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	tau := r.tau()
	r.update(tau)
	return r.deviceTime(tau), nil
}

func (r *Receiver) SetTimeNow(t float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	tau := r.tau()
	r.update(tau)
	r.setTau, r.setVal = tau, t
	r.armed = false
	return nil
}

func (r *Receiver) TimeLastPPS() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	r.update(r.tau())
	return r.latched, nil
}

func (r *Receiver) SetTimeNextPPS(t float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	tau := r.tau()
	r.update(tau)
	r.armed, r.armTau, r.armVal = true, tau, t
	return nil
}

// ReferenceLocked reports a lock once LockAfter sensor reads have been made
func (r *Receiver) ReferenceLocked() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}

	r.lockReads++
	if r.cfg.LockAfter < 0 {
		return false, nil
	}
	return r.lockReads > r.cfg.LockAfter, nil
}

func (r *Receiver) OpenStream() (sdr.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.sampleRate <= 0 {
		return nil, errors.New("sample rate is not set")
	}

	return &stream{rx: r}, nil
}

func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

// tau is the simulated reference time in seconds
func (r *Receiver) tau() float64 {
	return r.clock.Now().Sub(r.epoch).Seconds()
}

func (r *Receiver) deviceTime(tau float64) float64 {
	return r.setVal + (tau - r.setTau)
}

func (r *Receiver) edgeTime(k int64) float64 {
	t := r.cfg.PPSPhase.Seconds() + float64(k)*r.cfg.PPSPeriod.Seconds()
	if r.cfg.PPSJitter > 0 {
		j := gaussian(uint64(r.cfg.Seed), uint64(k)) * r.cfg.PPSJitter.Seconds()
		limit := r.cfg.PPSPeriod.Seconds() / 4
		t += math.Max(-limit, math.Min(limit, j))
	}
	return t
}

// latestEdge returns the index of the last edge at or before tau, or -1
func (r *Receiver) latestEdge(tau float64) int64 {
	k := int64(math.Floor((tau - r.cfg.PPSPhase.Seconds()) / r.cfg.PPSPeriod.Seconds()))
	if k < -1 {
		return -1
	}

	for k >= 0 && r.edgeTime(k) > tau {
		k--
	}
	for r.edgeTime(k+1) <= tau {
		k++
	}
	return k
}

// update latches the device time of any edge that occurred up to tau, applying a pending
// arm at the first edge following the arm command.
func (r *Receiver) update(tau float64) {
	k := r.latestEdge(tau)
	if k < 0 || k <= r.latchedEdge {
		return
	}

	if r.armed {
		if ka := r.latestEdge(r.armTau) + 1; ka <= k {
			r.setTau, r.setVal = r.edgeTime(ka), r.armVal
			r.armed = false
		}
	}

	r.latched = r.deviceTime(r.edgeTime(k))
	r.latchedEdge = k
}

// sample returns the received baseband value at reference time tau
func (r *Receiver) sample(tau float64) complex64 {
	v := r.emitter.At(tau-r.cfg.PropagationDelay) * complex(r.cfg.Amplitude, 0)
	if r.cfg.NoiseStdDev > 0 {
		v += complex(r.rng.NormFloat64()*r.cfg.NoiseStdDev, r.rng.NormFloat64()*r.cfg.NoiseStdDev)
	}
	return complex64(v)
}

type stream struct {
	rx *Receiver

	streaming bool
	startTau  float64
	index     int64
	calls     int
}

func (s *stream) IssueCommand(cmd sdr.StreamCommand) error {
	r := s.rx

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	switch cmd {
	case sdr.StartContinuous:
		s.streaming = true
		s.startTau = r.tau()
		s.index = 0
	case sdr.StopContinuous:
		s.streaming = false
	default:
		return fmt.Errorf("unsupported stream command %s", cmd)
	}
	return nil
}

func (s *stream) Receive(buf []complex64, timeout time.Duration) (int, sdr.RxMetadata) {
	r := s.rx

	r.mu.Lock()
	if r.closed || !s.streaming {
		r.mu.Unlock()
		_ = r.clock.Sleep(context.Background(), timeout)
		return 0, sdr.RxMetadata{ErrorCode: sdr.RxErrorTimeout, Message: "stream is not running"}
	}

	s.calls++
	call := s.calls
	n := len(buf)
	elapsed := time.Duration(float64(n) / r.sampleRate * float64(time.Second))

	if r.cfg.FailAtCall > 0 && call == r.cfg.FailAtCall {
		r.mu.Unlock()
		return 0, sdr.RxMetadata{ErrorCode: sdr.RxErrorBrokenChain, Message: fmt.Sprintf("simulated failure on receive call %d", call)}
	}

	if (r.cfg.OverflowEvery > 0 && call%r.cfg.OverflowEvery == 0) || slices.Contains(r.cfg.OverflowCalls, call) {
		s.index += int64(n) // dropped by the device
		r.mu.Unlock()
		_ = r.clock.Sleep(context.Background(), elapsed)
		return 0, sdr.RxMetadata{ErrorCode: sdr.RxErrorOverflow}
	}

	for i := range buf {
		buf[i] = r.sample(s.startTau + float64(s.index+int64(i))/r.sampleRate)
	}
	s.index += int64(n)
	r.mu.Unlock()

	_ = r.clock.Sleep(context.Background(), elapsed)
	return n, sdr.RxMetadata{ErrorCode: sdr.RxErrorNone}
}

func (s *stream) Close() error {
	r := s.rx

	r.mu.Lock()
	defer r.mu.Unlock()

	s.streaming = false
	return nil
}
