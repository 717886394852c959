package app

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soocke/display-fps-go/domain/fps"
	"github.com/soocke/display-fps-go/domain/session"
)

// WindowTime is the time attributed to one window label.
type WindowTime struct {
	Label string
	Time  time.Duration
}

// FocusWatcher follows the active window through emitted rows and logs each
// switch. It is fed by session callbacks and does not query windows itself,
// so it never competes with the sampling loop for the observer.
type FocusWatcher struct {
	Logger *slog.Logger
	width  time.Duration

	mu       sync.Mutex
	active   bool
	last     string // last label seen (normalized)
	switches int
	totals   map[string]time.Duration
}

// NewFocusWatcher constructs a watcher for buckets of the given width.
func NewFocusWatcher(logger *slog.Logger, width time.Duration) *FocusWatcher {
	if width <= 0 {
		width = fps.DefaultBucketWidth
	}
	return &FocusWatcher{Logger: logger, width: width, totals: make(map[string]time.Duration)}
}

// OnState should be registered as a session listener; it resets on entering
// the running state and logs the per-window totals once stopped.
func (w *FocusWatcher) OnState(prev, next session.State) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch next {
	case session.StateRunning:
		w.active = true
		w.last = ""
		w.switches = 0
		w.totals = make(map[string]time.Duration)
	case session.StateStopped:
		if !w.active {
			return
		}
		w.active = false
		if w.Logger != nil {
			w.Logger.Info("window usage", "switches", w.switches, "windows", len(w.totals))
		}
	}
}

// OnRow should be registered as a session row handler.
func (w *FocusWatcher) OnRow(r fps.Row) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.totals[r.Window] += w.width
	current := strings.ToLower(strings.TrimSpace(r.Window))
	if current == w.last { // only react on change
		return
	}
	if w.last != "" {
		w.switches++
		if w.Logger != nil {
			w.Logger.Info("active window changed", "window", r.Window, "at", r.BucketStart)
		}
	}
	w.last = current
}

// Switches returns how many times the labelled window changed.
func (w *FocusWatcher) Switches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.switches
}

// Windows returns per-label time, longest first.
func (w *FocusWatcher) Windows() []WindowTime {
	w.mu.Lock()
	out := make([]WindowTime, 0, len(w.totals))
	for l, d := range w.totals {
		out = append(out, WindowTime{Label: l, Time: d})
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time > out[j].Time
		}
		return out[i].Label < out[j].Label
	})
	return out
}
