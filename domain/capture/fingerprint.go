package capture

import (
	"image"

	"github.com/cespare/xxhash/v2"
)

// Fingerprinter reduces a frame to a Fingerprint. With Grid <= 0 every pixel
// row is hashed; otherwise one pixel from the centre of each cell of a
// Grid x Grid lattice is hashed, trading sensitivity for speed.
type Fingerprinter struct {
	Grid int
}

// Sum returns the fingerprint of img. A nil or empty image hashes to zero.
func (f Fingerprinter) Sum(img *image.RGBA) Fingerprint {
	if img == nil {
		return 0
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= 0 || h <= 0 {
		return 0
	}
	d := xxhash.New()
	if f.Grid <= 0 {
		row := w * 4
		for y := 0; y < h; y++ {
			off := y * img.Stride
			_, _ = d.Write(img.Pix[off : off+row])
		}
		return Fingerprint(d.Sum64())
	}
	g := f.Grid
	for gy := 0; gy < g; gy++ {
		y := gy*h/g + h/(2*g)
		for gx := 0; gx < g; gx++ {
			x := gx*w/g + w/(2*g)
			off := y*img.Stride + x*4
			_, _ = d.Write(img.Pix[off : off+4])
		}
	}
	return Fingerprint(d.Sum64())
}
