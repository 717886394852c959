package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/soocke/display-fps-go/domain/fps"
	"github.com/soocke/display-fps-go/domain/sink"
	"github.com/soocke/display-fps-go/domain/window"
	"github.com/soocke/display-fps-go/metrics"
)

// Session drives one sampling run: optional start delay, a bounded or
// unbounded sampling loop, and a final flush of the open bucket before the
// sink is closed. Cancellation is observed between iterations only, so a
// sample is either fully processed or not taken.
type Session struct {
	ID       uuid.UUID
	Clock    Clock
	Sentinel string

	detector FrameDetector
	labels   LabelSource
	open     SinkOpener
	logger   *slog.Logger

	state atomic.Int32

	mu          sync.Mutex
	listeners   []Listener
	rowHandlers []func(fps.Row)
}

// New constructs an idle session.
func New(detector FrameDetector, labels LabelSource, open SinkOpener, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &Session{
		ID:       id,
		Clock:    RealClock(),
		Sentinel: window.DefaultSentinel,
		detector: detector,
		labels:   labels,
		open:     open,
		logger:   logger.With("session", id.String()),
	}
}

// AddListener registers a state transition callback. Callbacks run on the
// sampling goroutine.
func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// OnRow registers a callback invoked after each row is durably appended.
func (s *Session) OnRow(h func(fps.Row)) {
	s.mu.Lock()
	s.rowHandlers = append(s.rowHandlers, h)
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Run executes the session. Cancellation of ctx ends it gracefully and is
// not reported as an error. A capture failure at startup returns before the
// sink is opened.
func (s *Session) Run(ctx context.Context, p Params) (res Result, err error) {
	res.ID = s.ID
	if err := p.Validate(); err != nil {
		return res, err
	}
	if s.State() != StateIdle {
		return res, ErrAlreadyRun
	}

	if err := s.detector.Probe(); err != nil {
		s.transition(StateStopped)
		return res, fmt.Errorf("capture unavailable: %w", err)
	}
	out, err := s.open()
	if err != nil {
		s.transition(StateStopped)
		return res, fmt.Errorf("open record sink: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close record sink: %w", cerr)
		}
		s.transition(StateStopped)
	}()

	s.transition(StateDelayed)
	if p.StartDelay > 0 {
		s.logger.Info("waiting before sampling", "delay", p.StartDelay)
	}
	if err := s.Clock.Sleep(ctx, p.StartDelay); err != nil || ctx.Err() != nil {
		s.logger.Info("session interrupted during start delay")
		res.Canceled = true
		return res, nil
	}

	s.transition(StateRunning)
	origin := s.Clock.Now()
	res.Started = origin
	agg := fps.NewAggregator(origin, p.BucketWidth, s.Sentinel)
	var deadline time.Time
	if !p.Unbounded {
		deadline = origin.Add(p.Duration)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.MaxSampleRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.MaxSampleRate), 1)
	}
	s.logger.Info("sampling started",
		"duration", p.Duration,
		"unbounded", p.Unbounded,
		"bucket_width", agg.Width(),
		"max_sample_rate", p.MaxSampleRate,
	)

	defer func() {
		res.Samples, res.Skipped, res.Changes, res.Rows = agg.Stats()
	}()

	var end time.Time
	for {
		now := s.Clock.Now()
		if ctx.Err() != nil {
			end = now
			res.Canceled = true
			break
		}
		if !p.Unbounded && !now.Before(deadline) {
			end = deadline
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			end = s.Clock.Now()
			res.Canceled = true
			break
		}
		// The limiter may have slept past the deadline.
		now = s.Clock.Now()
		if !p.Unbounded && !now.Before(deadline) {
			end = deadline
			break
		}

		fp, capErr := s.detector.Sample()
		label := s.labels.CurrentLabel()
		sample := fps.Sample{At: now, Fingerprint: fp, Label: label, Skipped: capErr != nil}
		if err := s.emit(out, agg.Observe(sample)); err != nil {
			res.Ended = now
			return res, err
		}
	}

	if ctx.Err() != nil {
		s.logger.Info("session interrupted, flushing open bucket")
	}
	if err := s.emit(out, agg.FlushUntil(end)); err != nil {
		res.Ended = end
		return res, err
	}
	res.Ended = end
	samples, skipped, changes, rows := agg.Stats()
	s.logger.Info("sampling finished",
		"rows", rows,
		"samples", samples,
		"skipped", skipped,
		"frames", changes,
		"canceled", res.Canceled,
		"elapsed", end.Sub(origin),
	)
	return res, nil
}

func (s *Session) emit(out sink.Sink, rows []fps.Row) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	handlers := slices.Clone(s.rowHandlers)
	s.mu.Unlock()
	for _, r := range rows {
		if err := out.Append(r); err != nil {
			return fmt.Errorf("append row %s: %w", r.BucketStart.Format(time.RFC3339), err)
		}
		metrics.FramesPresented.Add(float64(r.FPS))
		for _, h := range handlers {
			h(r)
		}
	}
	return nil
}

func (s *Session) transition(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	metrics.SessionState.Set(float64(next))
	s.logger.Debug("session state transition", "from", prev.String(), "to", next.String())
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l(prev, next)
	}
}
