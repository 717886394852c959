package window

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestObserver(t *testing.T, q QueryFunc, opts Options) *Observer {
	t.Helper()
	o, err := NewObserver(q, opts, discardLogger)
	if err != nil {
		t.Fatalf("new observer: %v", err)
	}
	return o
}

func TestObserver_TitleTrimmed(t *testing.T) {
	o := newTestObserver(t, func() (Info, error) { return Info{Title: "  Doom Eternal  "}, nil }, Options{})
	if got := o.CurrentLabel(); got != "Doom Eternal" {
		t.Fatalf("expected trimmed title, got %q", got)
	}
}

func TestObserver_ErrorYieldsSentinel(t *testing.T) {
	o := newTestObserver(t, func() (Info, error) { return Info{}, errors.New("boom") }, Options{Sentinel: "N/A"})
	if got := o.CurrentLabel(); got != "N/A" {
		t.Fatalf("expected sentinel, got %q", got)
	}
	if got := o.CurrentLabel(); got != "N/A" {
		t.Fatalf("expected sentinel on repeat, got %q", got)
	}
	if o.Failures() != 2 {
		t.Fatalf("expected 2 failures, got %d", o.Failures())
	}
}

func TestObserver_EmptyTitleYieldsDefaultSentinel(t *testing.T) {
	o := newTestObserver(t, func() (Info, error) { return Info{Title: "   "}, nil }, Options{})
	if got := o.CurrentLabel(); got != DefaultSentinel {
		t.Fatalf("expected %q, got %q", DefaultSentinel, got)
	}
}

func TestObserver_PanicIsContained(t *testing.T) {
	o := newTestObserver(t, func() (Info, error) { panic("driver bug") }, Options{})
	if got := o.CurrentLabel(); got != DefaultSentinel {
		t.Fatalf("expected sentinel after panic, got %q", got)
	}
}

func TestObserver_ProcessModes(t *testing.T) {
	q := func() (Info, error) { return Info{Title: "Level 3", PID: 42}, nil }
	var lookups atomic.Int32
	names := func(pid int32) (string, error) {
		lookups.Add(1)
		if pid != 42 {
			t.Fatalf("unexpected pid %d", pid)
		}
		return "game.exe", nil
	}

	cases := []struct {
		mode LabelMode
		want string
	}{
		{LabelTitle, "Level 3"},
		{LabelProcess, "game.exe"},
		{LabelBoth, "game.exe: Level 3"},
	}
	for _, tc := range cases {
		o := newTestObserver(t, q, Options{Mode: tc.mode})
		o.Names = names
		if got := o.CurrentLabel(); got != tc.want {
			t.Fatalf("mode %s: expected %q, got %q", tc.mode, tc.want, got)
		}
	}
}

func TestObserver_ProcessNameCached(t *testing.T) {
	var lookups atomic.Int32
	o := newTestObserver(t, func() (Info, error) { return Info{Title: "t", PID: 7}, nil }, Options{Mode: LabelProcess})
	o.Names = func(int32) (string, error) { lookups.Add(1); return "proc", nil }
	for i := 0; i < 5; i++ {
		if got := o.CurrentLabel(); got != "proc" {
			t.Fatalf("expected proc, got %q", got)
		}
	}
	if lookups.Load() != 1 {
		t.Fatalf("expected one lookup, got %d", lookups.Load())
	}
}

func TestObserver_ProcessLookupFailureFallsBackToTitle(t *testing.T) {
	o := newTestObserver(t, func() (Info, error) { return Info{Title: "Browser", PID: 9}, nil }, Options{Mode: LabelBoth})
	o.Names = func(int32) (string, error) { return "", errors.New("gone") }
	if got := o.CurrentLabel(); got != "Browser" {
		t.Fatalf("expected title fallback, got %q", got)
	}
}

func TestObserver_SlowQueryTimesOut(t *testing.T) {
	release := make(chan struct{})
	o := newTestObserver(t, func() (Info, error) {
		<-release
		return Info{Title: "late"}, nil
	}, Options{Timeout: 10 * time.Millisecond})

	start := time.Now()
	if got := o.CurrentLabel(); got != DefaultSentinel {
		t.Fatalf("expected sentinel on timeout, got %q", got)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout did not bound the query")
	}
	// Still in flight: skipped without blocking.
	if got := o.CurrentLabel(); got != DefaultSentinel {
		t.Fatalf("expected sentinel while busy, got %q", got)
	}
	close(release)
}

func TestParseLabelMode(t *testing.T) {
	if ParseLabelMode(" Process ") != LabelProcess {
		t.Fatalf("expected process mode")
	}
	if ParseLabelMode("both") != LabelBoth {
		t.Fatalf("expected both mode")
	}
	if ParseLabelMode("weird") != LabelTitle {
		t.Fatalf("expected title fallback")
	}
}

func TestObserver_SlowProcessLookupTimesOut(t *testing.T) {
	release := make(chan struct{})
	o := newTestObserver(t, func() (Info, error) { return Info{Title: "Level 3", PID: 42}, nil },
		Options{Mode: LabelProcess, Timeout: 10 * time.Millisecond})
	o.Names = func(int32) (string, error) {
		<-release
		return "game.exe", nil
	}

	start := time.Now()
	if got := o.CurrentLabel(); got != DefaultSentinel {
		t.Fatalf("expected sentinel while the name lookup hangs, got %q", got)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("process lookup was not bounded by the timeout")
	}
	if o.Failures() != 1 {
		t.Fatalf("expected the timeout to count as a failure, got %d", o.Failures())
	}
	close(release)
}

func TestObserver_ProcessLookupPanicIsContained(t *testing.T) {
	o := newTestObserver(t, func() (Info, error) { return Info{Title: "t", PID: 3}, nil },
		Options{Mode: LabelBoth, Timeout: time.Second})
	o.Names = func(int32) (string, error) { panic("bad pid table") }
	if got := o.CurrentLabel(); got != DefaultSentinel {
		t.Fatalf("expected sentinel after panic, got %q", got)
	}
}
