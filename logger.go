package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/soocke/display-fps-go/config"
)

// NewLogger returns a structured slog.Logger for the given settings. Output
// goes to w, which is stderr in production so stdout stays free for rows.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
