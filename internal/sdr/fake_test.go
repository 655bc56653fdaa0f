package sdr_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
)

// outcome scripts one receive call. Calls past the end of the script fill the whole buffer.
type outcome struct {
	n    int
	code sdr.RxErrorCode
	msg  string
}

// fakeReceiver streams the sequence 0, 1, 2, ... as the real part of its samples. Overflowed
// calls do not consume the sequence, so a complete capture always holds 0 .. n-1.
type fakeReceiver struct {
	mu sync.Mutex

	script  []outcome
	calls   int
	next    int
	stopErr error
	block   chan struct{} // when set, the first receive call waits on it
	entered chan struct{}

	now        float64
	timeErr    error
	timeReads  []float64
	readsAtRx0 int // time reads made before the first receive call

	commands []sdr.StreamCommand
	applied  []string
	closed   bool
}

func (f *fakeReceiver) ID() string { return "fake" }

func (f *fakeReceiver) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applied = append(f.applied, op)
	return nil
}

func (f *fakeReceiver) SetSampleRate(float64) error      { return f.record("rate") }
func (f *fakeReceiver) SetCenterFrequency(float64) error { return f.record("freq") }
func (f *fakeReceiver) SetGain(float64) error            { return f.record("gain") }

func (f *fakeReceiver) SetClockSource(sdr.ReferenceSource) error { return f.record("clock") }
func (f *fakeReceiver) SetTimeSource(sdr.ReferenceSource) error  { return f.record("time") }

func (f *fakeReceiver) TimeNow() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timeErr != nil {
		return 0, f.timeErr
	}

	f.now += 0.25
	f.timeReads = append(f.timeReads, f.now)
	return f.now, nil
}

func (f *fakeReceiver) SetTimeNow(t float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = t
	return nil
}

func (f *fakeReceiver) TimeLastPPS() (float64, error)  { return 0, nil }
func (f *fakeReceiver) SetTimeNextPPS(float64) error   { return nil }
func (f *fakeReceiver) OpenStream() (sdr.Stream, error) { return f, nil }

func (f *fakeReceiver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *fakeReceiver) IssueCommand(cmd sdr.StreamCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commands = append(f.commands, cmd)
	if cmd == sdr.StopContinuous {
		return f.stopErr
	}
	return nil
}

func (f *fakeReceiver) Receive(buf []complex64, _ time.Duration) (int, sdr.RxMetadata) {
	f.mu.Lock()
	if f.calls == 0 {
		f.readsAtRx0 = len(f.timeReads)
		if f.block != nil {
			block := f.block
			f.mu.Unlock()
			close(f.entered)
			<-block
			f.mu.Lock()
		}
	}
	defer f.mu.Unlock()

	call := f.calls
	f.calls++

	o := outcome{n: len(buf)}
	if call < len(f.script) {
		o = f.script[call]
	}
	if o.code != sdr.RxErrorNone {
		return 0, sdr.RxMetadata{ErrorCode: o.code, Message: o.msg}
	}

	n := min(o.n, len(buf))
	for i := 0; i < n; i++ {
		buf[i] = complex(float32(f.next), 0)
		f.next++
	}
	return n, sdr.RxMetadata{}
}

func (f *fakeReceiver) Commands() []sdr.StreamCommand {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]sdr.StreamCommand(nil), f.commands...)
}

// memorySink keeps every saved recording
type memorySink struct {
	mu    sync.Mutex
	saved []*iq.Recording
	err   error
}

func (m *memorySink) Save(_ context.Context, rec *iq.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rec)
	return nil
}

var (
	errStop = errors.New("stop failed")
	errTime = errors.New("time register unavailable")
)
