//go:build windows

package window

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32             = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW = user32.NewProc("GetWindowTextW")
)

// ForegroundWindow returns the title and owning process of the current
// foreground window.
func ForegroundWindow() (Info, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return Info{}, ErrNoForegroundWindow
	}
	const maxChars = 256
	buf := make([]uint16, maxChars)
	n, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if int(n) > len(buf) {
		n = uintptr(len(buf))
	}
	title := windows.UTF16ToString(buf[:n])

	var pid uint32
	_, _ = windows.GetWindowThreadProcessId(hwnd, &pid)
	return Info{Title: strings.TrimSpace(title), PID: int32(pid)}, nil
}
