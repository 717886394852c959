package sink

import (
	"sync"

	"github.com/soocke/display-fps-go/domain/fps"
)

// Sink receives closed rows in time order. Close must be safe to call more
// than once and releases the underlying resource.
type Sink interface {
	Append(row fps.Row) error
	Close() error
}

// Memory keeps rows in memory. The zero value is ready to use.
type Memory struct {
	mu     sync.Mutex
	rows   []fps.Row
	closed bool
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Append(row fps.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Rows returns a copy of the rows appended so far.
func (m *Memory) Rows() []fps.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fps.Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
