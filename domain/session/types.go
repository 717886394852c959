package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/display-fps-go/domain/capture"
	"github.com/soocke/display-fps-go/domain/sink"
)

// State enumerates the session lifecycle. Transitions only move forward:
// Idle -> Delayed -> Running -> Stopped; Stopped is terminal.
type State int

const (
	StateIdle State = iota
	StateDelayed
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDelayed:
		return "delayed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Listener is called on each state transition.
type Listener func(prev, next State)

var (
	// ErrInvalidParams is returned for negative durations.
	ErrInvalidParams = errors.New("session: invalid parameters")
	// ErrAlreadyRun is returned when Run is called on a used session.
	ErrAlreadyRun = errors.New("session: already run")
)

// FrameDetector is the capture contract the sampling loop needs.
type FrameDetector interface {
	Probe() error
	Sample() (capture.Fingerprint, error)
}

// LabelSource returns the foreground application label. It must not fail.
type LabelSource interface {
	CurrentLabel() string
}

// SinkOpener acquires the record sink for one session.
type SinkOpener func() (sink.Sink, error)

// Params are the typed session inputs.
type Params struct {
	StartDelay time.Duration
	// Duration bounds the running phase unless Unbounded is set.
	Duration  time.Duration
	Unbounded bool
	// BucketWidth defaults to one second.
	BucketWidth time.Duration
	// MaxSampleRate caps polls per second; zero polls as fast as capture allows.
	MaxSampleRate float64
}

// Validate rejects negative durations and rates.
func (p Params) Validate() error {
	switch {
	case p.StartDelay < 0:
		return fmt.Errorf("%w: negative start delay %v", ErrInvalidParams, p.StartDelay)
	case !p.Unbounded && p.Duration < 0:
		return fmt.Errorf("%w: negative duration %v", ErrInvalidParams, p.Duration)
	case p.BucketWidth < 0:
		return fmt.Errorf("%w: negative bucket width %v", ErrInvalidParams, p.BucketWidth)
	case p.MaxSampleRate < 0:
		return fmt.Errorf("%w: negative sample rate %v", ErrInvalidParams, p.MaxSampleRate)
	}
	return nil
}

// Result summarises a finished session.
type Result struct {
	ID uuid.UUID
	// Started is the end of the start delay; Ended is the instant the series
	// was closed at (deadline or cancellation time).
	Started  time.Time
	Ended    time.Time
	Rows     uint64
	Samples  uint64
	Skipped  uint64
	Changes  uint64
	Canceled bool
}

// Clock abstracts time for the sampling loop.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
