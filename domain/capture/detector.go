package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soocke/display-fps-go/metrics"
)

const captureStatsLogInterval = 5 * time.Second

// DetectorOptions configures a Detector.
type DetectorOptions struct {
	// Region restricts capture; the zero rectangle selects the full display.
	Region image.Rectangle
	// Grid is passed to the Fingerprinter.
	Grid int
	// Timeout bounds a single grab. Zero grabs synchronously with no bound.
	Timeout time.Duration
}

// Detector captures the screen and fingerprints it. Sample is called from a
// single sampling loop; only the counters are safe for concurrent reads.
type Detector struct {
	src     FrameSource
	fp      Fingerprinter
	want    image.Rectangle
	region  image.Rectangle
	timeout time.Duration
	logger  *slog.Logger

	inflight     atomic.Bool
	captures     atomic.Uint64
	skipped      atomic.Uint64
	timeouts     atomic.Uint64
	captureNanos atomic.Uint64
	lastCapture  atomic.Int64

	failureLogged bool
	lastStatsLog  time.Time
}

type grabResult struct {
	fp  Fingerprint
	err error
}

// NewDetector constructs a detector over src.
func NewDetector(src FrameSource, opts DetectorOptions, logger *slog.Logger) *Detector {
	return &Detector{
		src:     src,
		fp:      Fingerprinter{Grid: opts.Grid},
		want:    opts.Region,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Region returns the resolved capture rectangle (empty before Probe).
func (d *Detector) Region() image.Rectangle { return d.region }

// Probe resolves the capture region and performs one synchronous grab. A
// failure here means sampling cannot work at all.
func (d *Detector) Probe() error {
	r, err := ResolveRegion(d.src, d.want)
	if err != nil {
		return fmt.Errorf("resolve capture region: %w", err)
	}
	d.region = r
	if _, err := d.grab(); err != nil {
		return fmt.Errorf("probe capture: %w", err)
	}
	if d.logger != nil {
		d.logger.Info("capture ready", "region", r.String(), "grid", d.fp.Grid, "timeout", d.timeout)
	}
	return nil
}

// Sample grabs the current frame and returns its fingerprint. Errors mark a
// skipped sample; they never leave the detector in a broken state.
func (d *Detector) Sample() (Fingerprint, error) {
	if d.region.Empty() {
		r, err := ResolveRegion(d.src, d.want)
		if err != nil {
			return 0, d.fail(err)
		}
		d.region = r
	}

	var fp Fingerprint
	var err error
	if d.timeout <= 0 {
		fp, err = d.grab()
	} else {
		fp, err = d.grabWithTimeout()
	}
	if err != nil {
		return 0, d.fail(err)
	}

	d.captures.Add(1)
	d.lastCapture.Store(time.Now().UnixNano())
	metrics.SamplesTotal.WithLabelValues("captured").Inc()
	d.maybeLogStats()
	return fp, nil
}

// grabWithTimeout runs the grab on its own goroutine so a stuck capture call
// cannot stall the sampling loop. Only one grab may be in flight.
func (d *Detector) grabWithTimeout() (Fingerprint, error) {
	if !d.inflight.CompareAndSwap(false, true) {
		return 0, ErrCaptureBusy
	}
	done := make(chan grabResult, 1)
	go func() {
		defer d.inflight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				done <- grabResult{err: fmt.Errorf("capture: panic: %v", r)}
			}
		}()
		fp, err := d.grab()
		done <- grabResult{fp: fp, err: err}
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.fp, r.err
	case <-timer.C:
		d.timeouts.Add(1)
		return 0, ErrCaptureTimeout
	}
}

func (d *Detector) grab() (Fingerprint, error) {
	start := time.Now()
	img, err := d.src.Grab(d.region)
	if err != nil {
		return 0, err
	}
	fp := d.fp.Sum(img)
	d.src.Release(img)
	elapsed := time.Since(start)
	d.captureNanos.Add(uint64(elapsed.Nanoseconds()))
	metrics.CaptureDuration.Observe(elapsed.Seconds())
	return fp, nil
}

func (d *Detector) fail(err error) error {
	d.skipped.Add(1)
	switch err {
	case ErrCaptureTimeout:
		metrics.SamplesTotal.WithLabelValues("timeout").Inc()
	case ErrCaptureBusy:
		metrics.SamplesTotal.WithLabelValues("busy").Inc()
	default:
		metrics.SamplesTotal.WithLabelValues("error").Inc()
	}
	if d.logger != nil {
		if !d.failureLogged {
			d.failureLogged = true
			d.logger.Warn("capture skipped", "error", err)
		} else {
			d.logger.Debug("capture skipped", "error", err)
		}
	}
	return err
}

// Stats returns a snapshot of the detector counters.
func (d *Detector) Stats() CaptureStats {
	captures := d.captures.Load()
	total := d.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	var last time.Time
	if ns := d.lastCapture.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return CaptureStats{
		Captures:         captures,
		Skipped:          d.skipped.Load(),
		Timeouts:         d.timeouts.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      last,
	}
}

func (d *Detector) maybeLogStats() {
	if d.logger == nil {
		return
	}
	now := time.Now()
	if d.lastStatsLog.IsZero() {
		d.lastStatsLog = now
		return
	}
	if now.Sub(d.lastStatsLog) < captureStatsLogInterval {
		return
	}
	d.lastStatsLog = now
	stats := d.Stats()
	d.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"timeouts", stats.Timeouts,
		"avg_capture", stats.AvgCapture,
	)
}
