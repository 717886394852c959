//go:build !windows && !linux

package window

// ForegroundWindow is not implemented here; labels fall back to the sentinel.
func ForegroundWindow() (Info, error) { return Info{}, ErrUnsupported }
