package report

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/soocke/display-fps-go/domain/fps"
)

// FPS bands used to colour console rows.
const (
	SmoothFPS   = 60
	PlayableFPS = 30
)

// Console prints one line per emitted row. Elapsed time is measured from the
// start of the first row, at the end of each bucket.
type Console struct {
	w     io.Writer
	width time.Duration

	mu     sync.Mutex
	origin time.Time
	seen   bool

	smooth, playable, slow, idle *color.Color
}

// NewConsole returns a row printer for buckets of the given width. When
// useColor is false no escape sequences are written.
func NewConsole(w io.Writer, width time.Duration, useColor bool) *Console {
	if width <= 0 {
		width = fps.DefaultBucketWidth
	}
	c := &Console{
		w:        w,
		width:    width,
		smooth:   color.New(color.FgGreen, color.Bold),
		playable: color.New(color.FgYellow),
		slow:     color.New(color.FgRed, color.Bold),
		idle:     color.New(color.FgHiBlack),
	}
	for _, col := range []*color.Color{c.smooth, c.playable, c.slow, c.idle} {
		if useColor {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Banner prints the start-of-run header.
func (c *Console) Banner(duration time.Duration, unbounded bool, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if unbounded {
		fmt.Fprintln(c.w, "Tracking FPS and active window until interrupted.")
	} else {
		fmt.Fprintf(c.w, "Tracking FPS and active window for %s.\n", duration)
	}
	fmt.Fprintf(c.w, "Data will be saved to: %s\n", path)
	fmt.Fprintln(c.w, "Press Ctrl+C to stop early.")
	fmt.Fprintln(c.w, rule)
}

// Row prints r. It is safe to register directly as a session row handler.
func (c *Console) Row(r fps.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seen {
		c.origin = r.BucketStart
		c.seen = true
	}
	elapsed := r.BucketStart.Add(c.width).Sub(c.origin)
	fmt.Fprintf(c.w, "Time: %ss | FPS: %s | Active Window: %s\n",
		strconv.FormatFloat(elapsed.Seconds(), 'f', -1, 64),
		c.band(r.FPS).Sprintf("%-4d", r.FPS),
		r.Window,
	)
}

func (c *Console) band(n int) *color.Color {
	switch {
	case n >= SmoothFPS:
		return c.smooth
	case n >= PlayableFPS:
		return c.playable
	case n > 0:
		return c.slow
	default:
		return c.idle
	}
}

const rule = "------------------------------------------------------------"
