package ggpk

import (
	"bufio"
	"fmt"
	"io"
)

// Stream is the seekable byte stream a container lives in.
// Writes may be buffered until Flush; reads and seeks observe every earlier write.
type Stream interface {
	io.ReadWriteSeeker
	Flush() error
}

// NewStream wraps rws with a write buffer. A value that already implements Stream is returned as is.
func NewStream(rws io.ReadWriteSeeker) Stream {
	if s, ok := rws.(Stream); ok {
		return s
	}
	return &bufferedStream{
		rws: rws,
		w:   bufio.NewWriter(rws),
	}
}

type bufferedStream struct {
	rws io.ReadWriteSeeker
	w   *bufio.Writer
}

func (s *bufferedStream) Read(p []byte) (int, error) {
	if err := s.w.Flush(); err != nil {
		return 0, err
	}
	return s.rws.Read(p)
}

func (s *bufferedStream) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *bufferedStream) Seek(offset int64, whence int) (int64, error) {
	if err := s.w.Flush(); err != nil {
		return 0, err
	}
	return s.rws.Seek(offset, whence)
}

func (s *bufferedStream) Flush() error {
	return s.w.Flush()
}

// position returns the current offset of s.
func position(s io.Seeker) (int64, error) {
	pos, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, ioFail("get stream position", err)
	}
	return pos, nil
}

// seekTo moves s to the absolute offset.
func seekTo(s io.Seeker, offset int64) error {
	if _, err := s.Seek(offset, io.SeekStart); err != nil {
		return ioFail(fmt.Sprintf("seek to offset %d", offset), err)
	}
	return nil
}
