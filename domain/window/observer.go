package window

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/soocke/display-fps-go/metrics"
)

var (
	// ErrNoForegroundWindow is returned when nothing has focus.
	ErrNoForegroundWindow = errors.New("no foreground window")
	// ErrUnsupported is returned on platforms without a foreground query.
	ErrUnsupported = errors.New("foreground window query not supported on this platform")
	errQueryTimeout       = errors.New("foreground window query timed out")
	errQueryBusy          = errors.New("foreground window query still in flight")
)

// DefaultSentinel labels samples for which no window could be determined.
const DefaultSentinel = "unknown"

// Info describes the foreground window.
type Info struct {
	Title string
	PID   int32
}

// QueryFunc returns the current foreground window.
type QueryFunc func() (Info, error)

// LabelMode selects how Info is turned into a label.
type LabelMode string

const (
	LabelTitle   LabelMode = "title"
	LabelProcess LabelMode = "process"
	LabelBoth    LabelMode = "both"
)

// ParseLabelMode maps a config value to a LabelMode, defaulting to LabelTitle.
func ParseLabelMode(s string) LabelMode {
	switch LabelMode(strings.ToLower(strings.TrimSpace(s))) {
	case LabelProcess:
		return LabelProcess
	case LabelBoth:
		return LabelBoth
	default:
		return LabelTitle
	}
}

// Options configures an Observer.
type Options struct {
	Mode      LabelMode
	Sentinel  string
	Timeout   time.Duration
	CacheSize int
}

// Observer returns an opaque label for the foreground application. It never
// fails: any problem yields the sentinel label.
type Observer struct {
	Query  QueryFunc
	Names  func(pid int32) (string, error)
	Logger *slog.Logger

	mode     LabelMode
	sentinel string
	timeout  time.Duration
	names    *lru.Cache[int32, string]

	inflight      atomic.Bool
	failures      atomic.Uint64
	failureLogged bool
}

// NewObserver constructs an observer. A nil query selects the platform
// foreground window lookup.
func NewObserver(query QueryFunc, opts Options, logger *slog.Logger) (*Observer, error) {
	if query == nil {
		query = ForegroundWindow
	}
	if opts.Sentinel == "" {
		opts.Sentinel = DefaultSentinel
	}
	if opts.Mode == "" {
		opts.Mode = LabelTitle
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[int32, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("process name cache: %w", err)
	}
	return &Observer{
		Query:    query,
		Names:    processName,
		Logger:   logger,
		mode:     opts.Mode,
		sentinel: opts.Sentinel,
		timeout:  opts.Timeout,
		names:    cache,
	}, nil
}

// Sentinel returns the label used when no window is known.
func (o *Observer) Sentinel() string { return o.sentinel }

// Failures returns how many queries fell back to the sentinel.
func (o *Observer) Failures() uint64 { return o.failures.Load() }

// CurrentLabel returns the label of the foreground application. The window
// query and the process name lookup share one timeout.
func (o *Observer) CurrentLabel() string {
	label, err := o.fetch()
	if err != nil {
		o.fail(err)
		return o.sentinel
	}
	return label
}

func (o *Observer) fetch() (string, error) {
	if o.timeout <= 0 {
		return o.resolve()
	}
	if !o.inflight.CompareAndSwap(false, true) {
		return "", errQueryBusy
	}
	type result struct {
		label string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer o.inflight.Store(false)
		label, err := o.resolve()
		done <- result{label, err}
	}()
	timer := time.NewTimer(o.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.label, r.err
	case <-timer.C:
		return "", errQueryTimeout
	}
}

// resolve queries the foreground window and turns it into a label.
func (o *Observer) resolve() (label string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("foreground window query panic: %v", r)
		}
	}()
	info, err := o.Query()
	if err != nil {
		return "", err
	}
	if label = o.label(info); label == "" {
		return "", ErrNoForegroundWindow
	}
	return label, nil
}

func (o *Observer) label(info Info) string {
	title := strings.TrimSpace(info.Title)
	if o.mode == LabelTitle {
		return title
	}
	name := o.processName(info.PID)
	switch {
	case name == "":
		return title
	case o.mode == LabelProcess || title == "":
		return name
	default:
		return name + ": " + title
	}
}

func (o *Observer) processName(pid int32) string {
	if pid <= 0 || o.Names == nil {
		return ""
	}
	if name, ok := o.names.Get(pid); ok {
		return name
	}
	name, err := o.Names(pid)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Debug("process name lookup failed", "pid", pid, "error", err)
		}
		name = ""
	}
	name = strings.TrimSpace(name)
	o.names.Add(pid, name)
	return name
}

func (o *Observer) fail(err error) {
	o.failures.Add(1)
	reason := "error"
	switch {
	case errors.Is(err, errQueryTimeout):
		reason = "timeout"
	case errors.Is(err, errQueryBusy):
		reason = "busy"
	case errors.Is(err, ErrNoForegroundWindow):
		reason = "no_window"
	case errors.Is(err, ErrUnsupported):
		reason = "unsupported"
	}
	metrics.LabelFailures.WithLabelValues(reason).Inc()
	if o.Logger == nil {
		return
	}
	if !o.failureLogged {
		o.failureLogged = true
		o.Logger.Warn("foreground window unavailable, using sentinel", "error", err, "sentinel", o.sentinel)
		return
	}
	o.Logger.Debug("foreground window unavailable", "error", err)
}

func processName(pid int32) (string, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return p.Name()
}
