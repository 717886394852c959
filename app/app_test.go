package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soocke/display-fps-go/config"
	"github.com/soocke/display-fps-go/domain/sink"
	"github.com/soocke/display-fps-go/domain/window"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// flickerSource returns a different frame on every grab.
type flickerSource struct {
	mu      sync.Mutex
	n       uint8
	failAll bool
}

func (s *flickerSource) Bounds() (image.Rectangle, error) { return image.Rect(0, 0, 8, 8), nil }

func (s *flickerSource) Grab(r image.Rectangle) (*image.RGBA, error) {
	if s.failAll {
		return nil, errors.New("no display")
	}
	s.mu.Lock()
	s.n++
	v := s.n
	s.mu.Unlock()
	img := image.NewRGBA(r)
	for i := range img.Pix {
		img.Pix[i] = v
	}
	time.Sleep(time.Millisecond)
	return img, nil
}

func (s *flickerSource) Release(*image.RGBA) {}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Session.DurationSeconds = 0.3
	cfg.Session.BucketWidth = 100 * time.Millisecond
	cfg.Output.Path = filepath.Join(t.TempDir(), "fps.csv")
	cfg.Console.Color = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestRun_WritesContiguousRows(t *testing.T) {
	cfg := testConfig(t)
	var stdout bytes.Buffer
	query := func() (window.Info, error) { return window.Info{Title: "Benchmark"}, nil }

	res, err := Run(context.Background(), cfg, discardLogger, Options{Source: &flickerSource{}, Query: query, Stdout: &stdout})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Rows != 3 {
		t.Fatalf("expected 3 rows, got %d", res.Rows)
	}

	f, err := os.Open(cfg.Output.Path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := sink.ReadCSV(f)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 csv rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if d := rows[i].BucketStart.Sub(rows[i-1].BucketStart); d != 100*time.Millisecond {
			t.Fatalf("rows %d and %d are %v apart", i-1, i, d)
		}
	}
	for _, r := range rows {
		if r.Window != "Benchmark" && r.Window != window.DefaultSentinel {
			t.Fatalf("unexpected label %q", r.Window)
		}
	}

	out := stdout.String()
	if strings.Count(out, "| Active Window:") != 3 {
		t.Fatalf("expected three console rows, got:\n%s", out)
	}
	if !strings.Contains(out, "Tracking finished.") {
		t.Fatalf("expected summary, got:\n%s", out)
	}
}

func TestRun_CaptureUnavailableCreatesNoFile(t *testing.T) {
	cfg := testConfig(t)
	_, err := Run(context.Background(), cfg, discardLogger, Options{
		Source: &flickerSource{failAll: true},
		Query:  func() (window.Info, error) { return window.Info{}, window.ErrUnsupported },
		Stdout: io.Discard,
	})
	if err == nil {
		t.Fatalf("expected startup failure")
	}
	if _, statErr := os.Stat(cfg.Output.Path); !os.IsNotExist(statErr) {
		t.Fatalf("output should not exist after a failed probe (stat err %v)", statErr)
	}
}

func TestRun_CanceledBeforeStartLeavesHeaderOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.DelaySeconds = 10
	cfg.Console.Enabled = false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, cfg, discardLogger, Options{Source: &flickerSource{}, Stdout: io.Discard,
		Query: func() (window.Info, error) { return window.Info{Title: "x"}, nil }})
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	if !res.Canceled || res.Rows != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	b, err := os.ReadFile(cfg.Output.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(b)) != strings.Join(sink.Header, ",") {
		t.Fatalf("expected header only, got %q", b)
	}
}

func TestContainer_Params(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Session.DurationSeconds = 0
	cfg.Session.DelaySeconds = 1.5
	c, err := BuildContainer(cfg, discardLogger, Options{Source: &flickerSource{}, Stdout: io.Discard,
		Query: func() (window.Info, error) { return window.Info{}, nil }})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p := c.Params()
	if !p.Unbounded || p.StartDelay != 1500*time.Millisecond || p.BucketWidth != time.Second {
		t.Fatalf("unexpected params %+v", p)
	}
	if c.Metrics != nil {
		t.Fatalf("metrics server should be disabled without an address")
	}
}

func TestRun_MetricsAddressInUseLeavesOutputUntouched(t *testing.T) {
	held, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer held.Close()

	cfg := testConfig(t)
	cfg.Metrics.Address = held.Addr().String()
	previous := []byte("timestamp,fps,active_window\n2026-05-06T20:00:00.000Z,60,Game\n")
	if err := os.WriteFile(cfg.Output.Path, previous, 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	src := &flickerSource{}
	res, err := Run(context.Background(), cfg, discardLogger, Options{Source: src, Stdout: io.Discard,
		Query: func() (window.Info, error) { return window.Info{Title: "x"}, nil }})
	if err == nil {
		t.Fatalf("expected listen error")
	}
	if res.Canceled || res.Rows != 0 {
		t.Fatalf("session should not have started, got %+v", res)
	}
	if src.n != 0 {
		t.Fatalf("screen was sampled %d times", src.n)
	}
	got, err := os.ReadFile(cfg.Output.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, previous) {
		t.Fatalf("previous output was modified: %q", got)
	}
}
