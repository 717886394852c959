//go:build !windows

package capture

import (
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// screenSource grabs through the screenshot library, which allocates a fresh
// image per call, so Release has nothing to recycle.
type screenSource struct{}

// NewScreenSource returns the FrameSource for the primary display.
func NewScreenSource() FrameSource { return screenSource{} }

func (screenSource) Bounds() (image.Rectangle, error) {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("capture: screen bounds: %w", err)
	}
	return r, nil
}

func (screenSource) Grab(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, fmt.Errorf("capture: grab %v: %w", r, err)
	}
	return img, nil
}

func (screenSource) Release(*image.RGBA) {}
