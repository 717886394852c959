package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"

	"github.com/soocke/display-fps-go/domain/fps"
	"github.com/soocke/display-fps-go/domain/session"
)

// AnomalyZScore marks a bucket whose FPS lies further than this many
// standard deviations from the session mean.
const AnomalyZScore = 3.0

// Collector accumulates per-row FPS values for the end-of-session summary.
type Collector struct {
	mu     sync.Mutex
	values []float64
	frames int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector { return &Collector{} }

// Row records one emitted row.
func (c *Collector) Row(r fps.Row) {
	c.mu.Lock()
	c.values = append(c.values, float64(r.FPS))
	c.frames += r.FPS
	c.mu.Unlock()
}

// Summary is the end-of-session report.
type Summary struct {
	Rows        int
	Duration    time.Duration
	TotalFrames int
	Mean        float64
	StdDev      float64
	Min         int
	Max         int
	P95         float64
	Anomalies   int
	Samples     uint64
	Skipped     uint64
	Canceled    bool
}

// Summarize computes statistics over the collected rows. StdDev is the
// sample standard deviation, which is also what the anomaly z-scores use; it
// is zero for fewer than two rows.
func (c *Collector) Summarize(res session.Result) Summary {
	c.mu.Lock()
	values := append([]float64(nil), c.values...)
	frames := c.frames
	c.mu.Unlock()

	s := Summary{
		Rows:        len(values),
		TotalFrames: frames,
		Samples:     res.Samples,
		Skipped:     res.Skipped,
		Canceled:    res.Canceled,
	}
	if !res.Started.IsZero() && res.Ended.After(res.Started) {
		s.Duration = res.Ended.Sub(res.Started)
	}
	if len(values) == 0 {
		return s
	}

	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	sort.Float64s(values)
	s.Min = int(values[0])
	s.Max = int(values[len(values)-1])
	s.P95 = stat.Quantile(0.95, stat.Empirical, values, nil)
	if s.StdDev > 0 {
		for _, v := range values {
			if math.Abs(v-s.Mean)/s.StdDev > AnomalyZScore {
				s.Anomalies++
			}
		}
	}
	return s
}

// Print writes a human-readable report of s.
func (s Summary) Print(w io.Writer, path string) {
	fmt.Fprintln(w, rule)
	if s.Canceled {
		fmt.Fprintln(w, "Tracker stopped by user.")
	}
	fmt.Fprintln(w, "Tracking finished.")
	fmt.Fprintf(w, "Total duration: %.2f seconds\n", s.Duration.Seconds())
	fmt.Fprintf(w, "Rows written: %s\n", humanize.Comma(int64(s.Rows)))
	fmt.Fprintf(w, "Frames presented: %s\n", humanize.Comma(int64(s.TotalFrames)))
	if s.Rows > 0 {
		fmt.Fprintf(w, "Overall Average FPS: %.2f (min %d, max %d, p95 %.0f, stddev %.2f)\n",
			s.Mean, s.Min, s.Max, s.P95, s.StdDev)
		fmt.Fprintf(w, "Anomalous buckets (z-score > %.1f): %d\n", AnomalyZScore, s.Anomalies)
	}
	fmt.Fprintf(w, "Samples: %s (%s skipped)\n", humanize.Comma(int64(s.Samples)), humanize.Comma(int64(s.Skipped)))
	if path != "" {
		fmt.Fprintf(w, "Log file '%s' has been written.\n", path)
	}
}
