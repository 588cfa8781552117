package ggpk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// NameEncoding selects how record names are stored.
type NameEncoding int

const (
	// EncodingUTF16 stores names as UTF-16LE, 2 bytes per character.
	EncodingUTF16 NameEncoding = iota
	// EncodingUTF32 stores names as UTF-32LE, 4 bytes per character.
	EncodingUTF32
)

func (e NameEncoding) String() string {
	switch e {
	case EncodingUTF16:
		return "UTF-16LE"
	case EncodingUTF32:
		return "UTF-32LE"
	default:
		return "Unknown"
	}
}

// CharWidth is the number of bytes one stored character (and the terminator) takes.
func (e NameEncoding) CharWidth() int {
	if e == EncodingUTF32 {
		return 4
	}
	return 2
}

func (e NameEncoding) encoding() encoding.Encoding {
	if e == EncodingUTF32 {
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

// Encode returns the stored form of name, without the terminator.
func (e NameEncoding) Encode(name string) ([]byte, error) {
	b, err := e.encoding().NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to encode name %q as %s: %w", name, e, err)
	}
	return b, nil
}

// Decode converts the stored form of a name, without the terminator, back to a string.
func (e NameEncoding) Decode(b []byte) (string, error) {
	s, err := e.encoding().NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s name: %w", e, err)
	}
	return string(s), nil
}

// nameBytes is the stored size of chars characters plus the terminator.
func nameBytes(enc NameEncoding, chars int) int64 {
	return int64(chars+1) * int64(enc.CharWidth())
}

// readName reads chars characters followed by the terminator. It returns the decoded
// name and the stored bytes without the terminator.
func readName(r io.Reader, enc NameEncoding, chars int) (string, []byte, error) {
	width := enc.CharWidth()
	buf := make([]byte, nameBytes(enc, chars))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", nil, corrupt("read name", err)
	}
	for _, b := range buf[chars*width:] {
		if b != 0 {
			return "", nil, corrupt("read name terminator", errors.New("terminator is not NUL"))
		}
	}
	raw := buf[:chars*width]
	name, err := enc.Decode(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrFormatCorruption, err)
	}
	return name, raw, nil
}

// writeName writes an encoded name followed by a NUL terminator of the encoding's width.
func writeName(w io.Writer, enc NameEncoding, encoded []byte) error {
	buf := make([]byte, len(encoded)+enc.CharWidth())
	copy(buf, encoded)
	if _, err := w.Write(buf); err != nil {
		return ioFail("write name", err)
	}
	return nil
}

// readNameLength reads the stored character count and strips the terminator from it.
func readNameLength(r io.Reader) (int, error) {
	var stored int32
	if err := binary.Read(r, Endian, &stored); err != nil {
		return 0, corrupt("read name length", err)
	}
	if stored < 1 {
		return 0, fmt.Errorf("invalid name length %d: %w", stored, ErrFormatCorruption)
	}
	return int(stored) - 1, nil
}

// writeFields writes each value little-endian, stopping at the first failure.
func writeFields(w io.Writer, step string, fields ...any) error {
	for _, f := range fields {
		if err := binary.Write(w, Endian, f); err != nil {
			return ioFail(step, err)
		}
	}
	return nil
}
