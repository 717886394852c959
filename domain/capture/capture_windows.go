//go:build windows

package capture

// Windows screen capture through GDI. Each Grab BitBlt's the screen into a
// temporary DIB section, converts BGRA->RGBA into a pooled *image.RGBA and
// frees the GDI resources. Callers hand frames back with Release.

import (
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Win32 constants
const (
	smCxScreen   = 0
	smCyScreen   = 1
	srccopy      = 0x00CC0020
	captureBlt   = 0x40000000
	dibRGBColors = 0
	biRgb        = 0
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procGetDC              = user32.NewProc("GetDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procGetSystemMetrics   = user32.NewProc("GetSystemMetrics")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procBitBlt             = gdi32.NewProc("BitBlt")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

// BITMAPINFO structures (Win32 layout).
type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte // one RGBQUAD placeholder (unused for 32-bit)
}

type gdiSource struct{}

// NewScreenSource returns the FrameSource for the primary display.
func NewScreenSource() FrameSource { return gdiSource{} }

func (gdiSource) Bounds() (image.Rectangle, error) {
	w := int(getSystemMetric(smCxScreen))
	h := int(getSystemMetric(smCyScreen))
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("capture: invalid screen size w=%d h=%d", w, h)
	}
	return image.Rect(0, 0, w, h), nil
}

func (gdiSource) Grab(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	return captureRect(r)
}

func (gdiSource) Release(img *image.RGBA) { RecycleFrame(img) }

// captureRect performs BitBlt into a top-down DIB section and copies the
// pixels into a pooled frame.
func captureRect(r image.Rectangle) (*image.RGBA, error) {
	w, h := r.Dx(), r.Dy()

	screenDC, _, callErr := procGetDC.Call(0)
	if screenDC == 0 {
		return nil, fmt.Errorf("capture: GetDC failed: %v", callErr)
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, callErr := procCreateCompatibleDC.Call(screenDC)
	if memDC == 0 {
		return nil, fmt.Errorf("capture: CreateCompatibleDC failed: %v", callErr)
	}
	defer procDeleteDC.Call(memDC)

	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRgb
	bi.Header.BiSizeImage = uint32(w * h * 4)

	var bitsPtr unsafe.Pointer
	bmp, _, callErr := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bitsPtr)), 0, 0)
	if bmp == 0 {
		return nil, fmt.Errorf("capture: CreateDIBSection failed: %v", callErr)
	}
	defer procDeleteObject.Call(bmp)

	prev, _, callErr := procSelectObject.Call(memDC, bmp)
	if prev == 0 || prev == ^uintptr(0) { // failure or GDI_ERROR
		return nil, fmt.Errorf("capture: SelectObject failed: %v", callErr)
	}

	// CAPTUREBLT includes layered windows, which most games and video players use.
	ok, _, callErr := procBitBlt.Call(memDC, 0, 0, uintptr(w), uintptr(h), screenDC, uintptr(r.Min.X), uintptr(r.Min.Y), srccopy|captureBlt)
	if ok == 0 {
		return nil, fmt.Errorf("capture: BitBlt failed rect=%v: %v", r, callErr)
	}

	pixLen := w * h * 4
	src := unsafe.Slice((*byte)(bitsPtr), pixLen)
	dst := acquireFrame(image.Rect(0, 0, w, h))
	for i := 0; i < pixLen; i += 4 {
		dst.Pix[i+0] = src[i+2]
		dst.Pix[i+1] = src[i+1]
		dst.Pix[i+2] = src[i+0]
		dst.Pix[i+3] = 0xFF
	}
	return dst, nil
}

func getSystemMetric(idx int) int32 {
	v, _, _ := procGetSystemMetrics.Call(uintptr(idx))
	return int32(v)
}
