//go:build linux

package window

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// X11 lookup through the EWMH hints the window manager maintains on the
// root window. The connection is opened lazily and reopened after an error.

type x11Client struct {
	conn       *xgb.Conn
	root       xproto.Window
	activeAtom xproto.Atom
	nameAtom   xproto.Atom
	utf8Atom   xproto.Atom
	pidAtom    xproto.Atom
}

// x11RedialInterval limits reconnect attempts when no X server is reachable.
const x11RedialInterval = time.Second

var (
	x11Mu       sync.Mutex
	x11         *x11Client
	x11DialErr  error
	x11NextDial time.Time

	dialX11 = dialX11Conn
	x11Now  = time.Now
)

// ForegroundWindow returns the title and owning process of the active window.
// A failed connection is reported without redialing until x11RedialInterval
// has passed.
func ForegroundWindow() (Info, error) {
	x11Mu.Lock()
	defer x11Mu.Unlock()
	if x11 == nil {
		now := x11Now()
		if x11DialErr != nil && now.Before(x11NextDial) {
			return Info{}, x11DialErr
		}
		c, err := dialX11()
		if err != nil {
			x11DialErr = err
			x11NextDial = now.Add(x11RedialInterval)
			return Info{}, err
		}
		x11, x11DialErr = c, nil
	}
	info, err := x11.active()
	if err != nil && err != ErrNoForegroundWindow {
		x11.conn.Close()
		x11 = nil
	}
	return info, err
}

func dialX11Conn() (*x11Client, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect X server: %w", err)
	}
	c := &x11Client{conn: conn, root: xproto.Setup(conn).DefaultScreen(conn).Root}
	atoms := []struct {
		name string
		dst  *xproto.Atom
	}{
		{"_NET_ACTIVE_WINDOW", &c.activeAtom},
		{"_NET_WM_NAME", &c.nameAtom},
		{"UTF8_STRING", &c.utf8Atom},
		{"_NET_WM_PID", &c.pidAtom},
	}
	for _, a := range atoms {
		reply, err := xproto.InternAtom(conn, false, uint16(len(a.name)), a.name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("intern atom %s: %w", a.name, err)
		}
		*a.dst = reply.Atom
	}
	return c, nil
}

func (c *x11Client) active() (Info, error) {
	reply, err := xproto.GetProperty(c.conn, false, c.root, c.activeAtom, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return Info{}, fmt.Errorf("read _NET_ACTIVE_WINDOW: %w", err)
	}
	if reply == nil || len(reply.Value) < 4 {
		return Info{}, ErrNoForegroundWindow
	}
	win := xproto.Window(xgb.Get32(reply.Value))
	if win == 0 {
		return Info{}, ErrNoForegroundWindow
	}

	title := c.stringProp(win, c.nameAtom, c.utf8Atom)
	if title == "" {
		title = c.stringProp(win, xproto.AtomWmName, xproto.AtomString)
	}
	info := Info{Title: strings.TrimSpace(title)}
	if r, err := xproto.GetProperty(c.conn, false, win, c.pidAtom, xproto.AtomCardinal, 0, 1).Reply(); err == nil && r != nil && len(r.Value) >= 4 {
		info.PID = int32(xgb.Get32(r.Value))
	}
	return info, nil
}

func (c *x11Client) stringProp(win xproto.Window, prop, typ xproto.Atom) string {
	r, err := xproto.GetProperty(c.conn, false, win, prop, typ, 0, 1024).Reply()
	if err != nil || r == nil {
		return ""
	}
	return string(r.Value)
}
