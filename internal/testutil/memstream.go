// Package testutil holds helpers shared by package tests.
package testutil

import (
	"errors"
	"fmt"
	"io"
)

// ErrInjected is returned by a MemStream whose writes were told to fail.
var ErrInjected = errors.New("testutil: injected write failure")

// MemStream is an in-memory io.ReadWriteSeeker. Writes past the end grow it,
// filling any gap with zeros.
type MemStream struct {
	buf []byte
	pos int64

	// FailWrites makes every Write return ErrInjected.
	FailWrites bool
}

// NewMemStream returns a stream holding a copy of b, positioned at 0.
func NewMemStream(b []byte) *MemStream {
	return &MemStream{buf: append([]byte(nil), b...)}
}

func (m *MemStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemStream) Write(p []byte) (int, error) {
	if m.FailWrites {
		return 0, ErrInjected
	}
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *MemStream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("testutil: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("testutil: negative position %d", abs)
	}
	m.pos = abs
	return abs, nil
}

// Bytes returns the current contents. The slice aliases the stream.
func (m *MemStream) Bytes() []byte {
	return m.buf
}

// Len is the current size of the stream.
func (m *MemStream) Len() int64 {
	return int64(len(m.buf))
}
