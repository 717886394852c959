package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soocke/display-fps-go/config"
	"github.com/soocke/display-fps-go/debug"
	"github.com/soocke/display-fps-go/domain/session"
)

const debugLogInterval = 5 * time.Second

// Run builds the container and runs one tracking session to completion.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (session.Result, error) {
	c, err := BuildContainer(cfg, logger, opts)
	if err != nil {
		return session.Result{}, err
	}
	return c.Run(ctx)
}

// Run executes the session alongside the optional metrics server and debug
// loggers. Everything else stops once the session ends.
func (c *Container) Run(ctx context.Context) (session.Result, error) {
	// Bind before the session can touch the output file.
	if c.Metrics != nil {
		if err := c.Metrics.Listen(); err != nil {
			return session.Result{}, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if c.Config.Debug {
		debug.StartGoroutineLogger(gctx, debugLogInterval, c.Logger)
		debug.StartMemLogger(gctx, debugLogInterval, c.Logger)
	}
	if c.Metrics != nil {
		g.Go(func() error { return c.Metrics.Run(gctx) })
	}

	p := c.Params()
	if c.Console != nil {
		c.Console.Banner(p.Duration, p.Unbounded, c.Config.Output.Path)
	}

	var res session.Result
	g.Go(func() error {
		defer cancel()
		var err error
		res, err = c.Session.Run(gctx, p)
		return err
	})
	err := g.Wait()

	stats := c.Detector.Stats()
	c.Logger.Info("capture stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"timeouts", stats.Timeouts,
		"avg_capture_us", stats.AvgCaptureMicros,
		"label_failures", c.Observer.Failures(),
	)
	if err != nil {
		return res, err
	}
	c.Collector.Summarize(res).Print(c.Stdout, c.Config.Output.Path)
	if ws := c.Focus.Windows(); len(ws) > 0 {
		fmt.Fprintln(c.Stdout, "Time per window:")
		for _, w := range ws {
			fmt.Fprintf(c.Stdout, "  %s: %s\n", w.Label, w.Time)
		}
	}
	return res, nil
}
