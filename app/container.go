package app

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/soocke/display-fps-go/config"
	"github.com/soocke/display-fps-go/domain/capture"
	"github.com/soocke/display-fps-go/domain/session"
	"github.com/soocke/display-fps-go/domain/sink"
	"github.com/soocke/display-fps-go/domain/window"
	"github.com/soocke/display-fps-go/metrics"
	"github.com/soocke/display-fps-go/report"
)

// Options override platform dependencies. Zero values select the real screen,
// the real foreground window and os.Stdout.
type Options struct {
	Source capture.FrameSource
	Query  window.QueryFunc
	Stdout io.Writer
}

// Container assembles the detector, observer, session and reporters.
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Detector  *capture.Detector
	Observer  *window.Observer
	Session   *session.Session
	Console   *report.Console
	Collector *report.Collector
	Focus     *FocusWatcher
	Metrics   *metrics.Server
	Stdout    io.Writer
}

// BuildContainer constructs all components. No capture, window query or file
// access happens here; the session performs them when it runs.
func BuildContainer(cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Source == nil {
		opts.Source = capture.NewScreenSource()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	c := &Container{Config: cfg, Logger: logger, Stdout: opts.Stdout}

	region := image.Rect(
		cfg.Capture.RegionX, cfg.Capture.RegionY,
		cfg.Capture.RegionX+cfg.Capture.RegionW, cfg.Capture.RegionY+cfg.Capture.RegionH,
	)
	c.Detector = capture.NewDetector(opts.Source, capture.DetectorOptions{
		Region:  region,
		Grid:    cfg.Capture.Grid,
		Timeout: cfg.Capture.Timeout,
	}, logger.With("component", "capture"))

	obs, err := window.NewObserver(opts.Query, window.Options{
		Mode:      window.ParseLabelMode(cfg.Window.LabelMode),
		Sentinel:  cfg.Window.Sentinel,
		Timeout:   cfg.Window.Timeout,
		CacheSize: cfg.Window.ProcessCacheSize,
	}, logger.With("component", "window"))
	if err != nil {
		return nil, fmt.Errorf("window observer: %w", err)
	}
	c.Observer = obs

	out := cfg.Output
	c.Session = session.New(c.Detector, c.Observer, func() (sink.Sink, error) {
		return sink.OpenCSV(out.Path, sink.Options{Append: out.Append, Sync: out.Sync})
	}, logger)
	c.Session.Sentinel = obs.Sentinel()

	c.Focus = NewFocusWatcher(logger.With("component", "focus"), cfg.Session.BucketWidth)
	c.Session.AddListener(c.Focus.OnState)
	c.Session.OnRow(c.Focus.OnRow)

	c.Collector = report.NewCollector()
	c.Session.OnRow(c.Collector.Row)
	if cfg.Console.Enabled {
		c.Console = report.NewConsole(opts.Stdout, cfg.Session.BucketWidth, cfg.Console.Color)
		c.Session.OnRow(c.Console.Row)
	}
	if cfg.Metrics.Address != "" {
		c.Metrics = metrics.NewServer(cfg.Metrics.Address, logger)
	}
	return c, nil
}

// Params translates configuration into session parameters.
func (c *Container) Params() session.Params {
	d, bounded := c.Config.Session.Duration()
	return session.Params{
		StartDelay:    c.Config.Session.Delay(),
		Duration:      d,
		Unbounded:     !bounded,
		BucketWidth:   c.Config.Session.BucketWidth,
		MaxSampleRate: c.Config.Session.MaxSampleRate,
	}
}
