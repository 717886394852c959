package capture

import (
	"errors"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// scriptedSource returns a solid frame per call, coloured by the next shade in the script.
type scriptedSource struct {
	mu       sync.Mutex
	bounds   image.Rectangle
	shades   []uint8
	idx      int
	err      error
	delay    time.Duration
	grabbed  []image.Rectangle
	released int
}

func (s *scriptedSource) Bounds() (image.Rectangle, error) { return s.bounds, nil }

func (s *scriptedSource) Grab(r image.Rectangle) (*image.RGBA, error) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grabbed = append(s.grabbed, r)
	if s.err != nil {
		return nil, s.err
	}
	shade := uint8(0)
	if len(s.shades) > 0 {
		shade = s.shades[s.idx%len(s.shades)]
		s.idx++
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			img.SetRGBA(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 0xFF})
		}
	}
	return img, nil
}

func (s *scriptedSource) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *scriptedSource) Release(*image.RGBA) {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

func TestDetector_ProbeResolvesFullScreen(t *testing.T) {
	src := &scriptedSource{bounds: image.Rect(0, 0, 8, 6), shades: []uint8{1}}
	d := NewDetector(src, DetectorOptions{}, discardLogger)
	if err := d.Probe(); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := d.Region(); got != image.Rect(0, 0, 8, 6) {
		t.Fatalf("expected full bounds, got %v", got)
	}
	if src.released != 1 {
		t.Fatalf("expected probe frame released, got %d", src.released)
	}
}

func TestDetector_ProbeClipsRegion(t *testing.T) {
	src := &scriptedSource{bounds: image.Rect(0, 0, 10, 10)}
	d := NewDetector(src, DetectorOptions{Region: image.Rect(5, 5, 20, 20)}, nil)
	if err := d.Probe(); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := d.Region(); got != image.Rect(5, 5, 10, 10) {
		t.Fatalf("expected clipped region, got %v", got)
	}
}

func TestDetector_ProbeFailsOutsideScreen(t *testing.T) {
	src := &scriptedSource{bounds: image.Rect(0, 0, 10, 10)}
	d := NewDetector(src, DetectorOptions{Region: image.Rect(50, 50, 60, 60)}, nil)
	if err := d.Probe(); !errors.Is(err, ErrEmptyRegion) {
		t.Fatalf("expected ErrEmptyRegion, got %v", err)
	}
}

func TestDetector_ProbeSurfacesCaptureError(t *testing.T) {
	src := &scriptedSource{bounds: image.Rect(0, 0, 4, 4), err: errors.New("permission denied")}
	d := NewDetector(src, DetectorOptions{}, nil)
	if err := d.Probe(); err == nil {
		t.Fatalf("expected probe error")
	}
}

func TestDetector_SampleFingerprintsTrackContent(t *testing.T) {
	src := &scriptedSource{bounds: image.Rect(0, 0, 4, 4), shades: []uint8{10, 10, 20}}
	d := NewDetector(src, DetectorOptions{}, discardLogger)
	a, err := d.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	b, _ := d.Sample()
	c, _ := d.Sample()
	if Changed(a, b) {
		t.Fatalf("identical frames should not count as a change")
	}
	if !Changed(b, c) {
		t.Fatalf("different frames should count as a change")
	}
	if st := d.Stats(); st.Captures != 3 || st.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestDetector_SampleErrorCountsAsSkipped(t *testing.T) {
	src := &scriptedSource{bounds: image.Rect(0, 0, 4, 4), err: errors.New("display lost")}
	d := NewDetector(src, DetectorOptions{}, discardLogger)
	if _, err := d.Sample(); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := d.Sample(); err == nil {
		t.Fatalf("expected error")
	}
	if st := d.Stats(); st.Skipped != 2 || st.Captures != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestDetector_SlowGrabTimesOutThenBusy(t *testing.T) {
	src := &scriptedSource{bounds: image.Rect(0, 0, 2, 2), delay: 200 * time.Millisecond}
	d := NewDetector(src, DetectorOptions{Timeout: 10 * time.Millisecond}, discardLogger)
	d.region = image.Rect(0, 0, 2, 2)

	if _, err := d.Sample(); !errors.Is(err, ErrCaptureTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	// The first grab is still sleeping.
	if _, err := d.Sample(); !errors.Is(err, ErrCaptureBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	src.setDelay(0)
	if _, err := d.Sample(); err != nil {
		t.Fatalf("expected recovery after in-flight grab finished, got %v", err)
	}
	st := d.Stats()
	if st.Timeouts != 1 || st.Skipped != 2 || st.Captures != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
