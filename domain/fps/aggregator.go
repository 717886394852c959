package fps

import (
	"time"

	"github.com/soocke/display-fps-go/domain/capture"
)

// Aggregator buckets frame-change events into fixed-width windows aligned to
// an origin instant. Bucket i covers [origin+i*width, origin+(i+1)*width).
// Rows are produced in strictly increasing bucket order with no gaps; buckets
// that saw no samples are emitted with a zero count.
//
// An Aggregator is owned by a single sampling loop and is not safe for
// concurrent use.
type Aggregator struct {
	origin   time.Time
	width    time.Duration
	sentinel string

	open  bool
	index int64 // bucket currently open
	next  int64 // first bucket not yet emitted
	count int
	label string // last label seen in the open bucket
	carry string // last label seen at all, used for empty buckets

	havePrev bool
	prev     capture.Fingerprint

	samples uint64
	skipped uint64
	changes uint64
	rows    uint64
}

// NewAggregator returns an aggregator whose first bucket starts at origin.
// A non-positive width falls back to DefaultBucketWidth. sentinel labels
// buckets for which no window label was ever observed.
func NewAggregator(origin time.Time, width time.Duration, sentinel string) *Aggregator {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	return &Aggregator{origin: origin, width: width, sentinel: sentinel}
}

// Origin returns the start of the first bucket.
func (a *Aggregator) Origin() time.Time { return a.origin }

// Width returns the bucket width.
func (a *Aggregator) Width() time.Duration { return a.width }

// Observe feeds one sample and returns the rows closed by it, oldest first.
// A change between this sample's fingerprint and the previous one counts
// toward the bucket containing this sample.
func (a *Aggregator) Observe(s Sample) []Row {
	var rows []Row
	idx := a.indexOf(s.At)
	if a.open && idx > a.index {
		rows = append(rows, a.close())
	}
	if !a.open {
		if idx < a.next {
			// Sample for a bucket already written; fold it into the next one.
			idx = a.next
		}
		rows = append(rows, a.pad(idx)...)
		a.open = true
		a.index = idx
		a.count = 0
		a.label = ""
	}
	// idx < a.index only if the clock stepped back; the sample stays in the
	// open bucket.

	a.samples++
	if s.Skipped {
		a.skipped++
	} else {
		if a.havePrev && capture.Changed(a.prev, s.Fingerprint) {
			a.count++
			a.changes++
		}
		a.prev = s.Fingerprint
		a.havePrev = true
	}
	if s.Label != "" {
		a.label = s.Label
		a.carry = s.Label
	}
	return rows
}

// Flush closes the open bucket with whatever it has counted so far.
func (a *Aggregator) Flush() (Row, bool) {
	if !a.open {
		return Row{}, false
	}
	return a.close(), true
}

// FlushUntil closes the open bucket and then emits zero-count rows for every
// remaining bucket that starts before end, so the series covers
// [origin, end) without holes.
func (a *Aggregator) FlushUntil(end time.Time) []Row {
	var rows []Row
	if row, ok := a.Flush(); ok {
		rows = append(rows, row)
	}
	if !end.After(a.origin) {
		return rows
	}
	d := end.Sub(a.origin)
	n := int64((d + a.width - 1) / a.width)
	return append(rows, a.pad(n)...)
}

// Stats returns the number of samples, skipped samples, frame changes and
// rows emitted so far.
func (a *Aggregator) Stats() (samples, skipped, changes, rows uint64) {
	return a.samples, a.skipped, a.changes, a.rows
}

func (a *Aggregator) indexOf(t time.Time) int64 {
	if t.Before(a.origin) {
		return 0
	}
	return int64(t.Sub(a.origin) / a.width)
}

func (a *Aggregator) start(idx int64) time.Time {
	return a.origin.Add(time.Duration(idx) * a.width)
}

func (a *Aggregator) close() Row {
	label := a.label
	if label == "" {
		label = a.fallbackLabel()
	}
	row := Row{BucketStart: a.start(a.index), FPS: a.count, Window: label}
	a.open = false
	a.next = a.index + 1
	a.count = 0
	a.label = ""
	a.rows++
	return row
}

// pad emits zero rows for buckets [next, upto).
func (a *Aggregator) pad(upto int64) []Row {
	if upto <= a.next {
		return nil
	}
	rows := make([]Row, 0, upto-a.next)
	for i := a.next; i < upto; i++ {
		rows = append(rows, Row{BucketStart: a.start(i), FPS: 0, Window: a.fallbackLabel()})
	}
	a.rows += uint64(len(rows))
	a.next = upto
	return rows
}

func (a *Aggregator) fallbackLabel() string {
	if a.carry != "" {
		return a.carry
	}
	return a.sentinel
}
