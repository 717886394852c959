package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/soocke/display-fps-go/domain/fps"
	"github.com/soocke/display-fps-go/metrics"
)

// TimestampLayout formats bucket starts: RFC 3339 with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Header is the stable column order of the output table.
var Header = []string{"timestamp", "fps", "active_window"}

// ErrClosed is returned when appending to a closed sink.
var ErrClosed = errors.New("sink: closed")

// Options controls how the destination file is opened.
type Options struct {
	// Append keeps existing rows; otherwise the file is truncated.
	Append bool
	// Sync fsyncs after every row.
	Sync bool
}

// CSV appends rows to a CSV file. Every Append is flushed to the OS before
// returning, so a process killed between rows leaves a well-formed file.
type CSV struct {
	path   string
	f      *os.File
	w      *csv.Writer
	sync   bool
	closed bool
}

// OpenCSV creates or opens path and writes the header when the file is new
// or empty.
func OpenCSV(path string, opts Options) (*CSV, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if opts.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat output %s: %w", path, err)
	}
	s := &CSV{path: path, f: f, w: csv.NewWriter(f), sync: opts.Sync}
	if info.Size() == 0 {
		if err := s.write(Header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return s, nil
}

// Path returns the destination path.
func (s *CSV) Path() string { return s.path }

func (s *CSV) Append(row fps.Row) error {
	if s.closed {
		return ErrClosed
	}
	rec := []string{
		row.BucketStart.Format(TimestampLayout),
		strconv.Itoa(row.FPS),
		row.Window,
	}
	if err := s.write(rec); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	metrics.RowsWritten.Inc()
	metrics.LastBucketFPS.Set(float64(row.FPS))
	return nil
}

func (s *CSV) write(rec []string) error {
	if err := s.w.Write(rec); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if s.sync {
		return s.f.Sync()
	}
	return nil
}

func (s *CSV) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	err := s.w.Error()
	if syncErr := s.f.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := s.f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ReadCSV parses a file written by CSV back into rows.
func ReadCSV(r io.Reader) ([]fps.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	var rows []fps.Row
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if first {
			first = false
			if rec[0] == Header[0] {
				continue
			}
		}
		ts, err := time.Parse(TimestampLayout, rec[0])
		if err != nil {
			return rows, fmt.Errorf("parse timestamp %q: %w", rec[0], err)
		}
		n, err := strconv.Atoi(rec[1])
		if err != nil {
			return rows, fmt.Errorf("parse fps %q: %w", rec[1], err)
		}
		rows = append(rows, fps.Row{BucketStart: ts, FPS: n, Window: rec[2]})
	}
}
