package capture

import (
	"errors"
	"image"
)

var (
	// ErrCaptureTimeout is returned when a grab exceeds the detector timeout.
	ErrCaptureTimeout = errors.New("capture: timed out")
	// ErrCaptureBusy is returned while a previously timed-out grab is still running.
	ErrCaptureBusy = errors.New("capture: previous grab still in flight")
	// ErrEmptyRegion is returned when the configured region does not intersect the screen.
	ErrEmptyRegion = errors.New("capture: empty region")
)

// FrameSource provides read-only access to the displayed image.
// Grab returns the pixels currently presented inside r; Release hands the image
// back once the caller has finished with it. A platform exposing native
// presentation events can implement FrameSource without changing consumers.
type FrameSource interface {
	Bounds() (image.Rectangle, error)
	Grab(r image.Rectangle) (*image.RGBA, error)
	Release(img *image.RGBA)
}

// Fingerprint is a comparable summary of one captured frame. Equal fingerprints
// are treated as the same presented frame.
type Fingerprint uint64

// Changed reports whether curr represents a newly presented frame relative to prev.
func Changed(prev, curr Fingerprint) bool { return prev != curr }

// ResolveRegion clips want to the source bounds. An empty want selects the
// full bounds.
func ResolveRegion(src FrameSource, want image.Rectangle) (image.Rectangle, error) {
	bounds, err := src.Bounds()
	if err != nil {
		return image.Rectangle{}, err
	}
	if want.Empty() {
		if bounds.Empty() {
			return image.Rectangle{}, ErrEmptyRegion
		}
		return bounds, nil
	}
	r := want.Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, ErrEmptyRegion
	}
	return r, nil
}
