package fps

import (
	"time"

	"github.com/soocke/display-fps-go/domain/capture"
)

// DefaultBucketWidth is the width of one output row.
const DefaultBucketWidth = time.Second

// Sample is one poll of the screen and the foreground window. Samples are
// consumed immediately by the Aggregator and never stored.
type Sample struct {
	At          time.Time
	Fingerprint capture.Fingerprint
	Label       string
	// Skipped marks a poll whose capture failed or timed out. It carries no
	// frame event and does not replace the previous fingerprint.
	Skipped bool
}

// Row is one closed bucket: the number of presented frames counted in
// [BucketStart, BucketStart+width) and the foreground window label.
type Row struct {
	BucketStart time.Time
	FPS         int
	Window      string
}
