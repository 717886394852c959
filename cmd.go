package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soocke/display-fps-go/app"
	"github.com/soocke/display-fps-go/config"
)

var version = "dev"

// runFunc runs a session for a loaded configuration.
type runFunc func(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"duration":     "session.duration_seconds",
	"delay":        "session.delay_seconds",
	"output":       "output.path",
	"append":       "output.append",
	"label-mode":   "window.label_mode",
	"metrics-addr": "metrics.address",
	"debug":        "debug",
}

func newRootCmd(run runFunc) *cobra.Command {
	v := config.NewViper()
	var configPath string

	cmd := &cobra.Command{
		Use:   "display-fps",
		Short: "Track presented frames per second and the active window",
		Long: `display-fps samples the screen, counts how often its content changes and
writes one row per second with that count and the foreground window label.`,
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return run(cmd.Context(), cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "displayfps.yaml", "Path to configuration file")
	f.Float64P("duration", "d", 60, "Tracking duration in seconds (0 runs until interrupted)")
	f.Float64("delay", 0, "Seconds to wait before sampling starts")
	f.StringP("output", "o", "fps_log.csv", "CSV output path")
	f.Bool("append", false, "Append to an existing output file instead of overwriting it")
	f.String("label-mode", "title", "Window label: title, process or both")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	f.Bool("debug", false, "Log goroutine and memory statistics periodically")
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, f.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

func runSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	logger := NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting display-fps", "version", version, "output", cfg.Output.Path)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err := app.Run(ctx, cfg, logger, app.Options{Stdout: cmd.OutOrStdout()})
	return err
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd(runSession).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
