package capture

import (
	"time"
)

// CaptureStats summarises detector behaviour for instrumentation.
type CaptureStats struct {
	Captures         uint64
	Skipped          uint64
	Timeouts         uint64
	AvgCapture       time.Duration
	AvgCaptureMicros float64
	LastCapture      time.Time
}
