package ggpk

import (
	"fmt"
	"io"
	"math"
)

// FileRecord is a "FILE" record: a name, the hash of the content and the content itself.
//
//	length        uint32
//	tag           uint32  "FILE"
//	nameLength    int32   characters including the terminator
//	hash          [32]byte
//	name          (nameLength) * 2 or 4 bytes, NUL terminated
//	content       length - (header + name) bytes
//
// Content is never held in memory; it is read from the stream on demand.
type FileRecord struct {
	record
	node

	hash       Hash
	dataOffset int64
	dataLength int32
}

// RecordLength computes the stored length of a file record named name holding contentLength bytes.
func RecordLength(enc NameEncoding, name string, contentLength int32) (uint32, error) {
	encoded, err := enc.Encode(name)
	if err != nil {
		return 0, err
	}
	return fileRecordLength(enc, len(encoded), contentLength)
}

func fileRecordLength(enc NameEncoding, encodedNameLen int, contentLength int32) (uint32, error) {
	n := uint64(encodedNameLen) + uint64(enc.CharWidth()) + FileHeaderSize + uint64(contentLength)
	if contentLength < 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("file record of %d content bytes: %w", contentLength, ErrSizeOverflow)
	}
	return uint32(n), nil
}

// ReadFileRecord parses a file record from the container stream. The stream must be
// positioned just past the record's length and tag fields and the container lock held.
// The stream is left at the end of the record; content is not read.
func ReadFileRecord(c *Container, length uint32) (*FileRecord, error) {
	s := c.stream
	pos, err := position(s)
	if err != nil {
		return nil, err
	}

	f := &FileRecord{record: record{c: c, offset: pos - RecordHeaderSize, length: length}}

	chars, err := readNameLength(s)
	if err != nil {
		return nil, err
	}
	enc := c.Encoding()
	if FileHeaderSize+nameBytes(enc, chars) > int64(length) {
		return nil, fmt.Errorf("file record at %d: name of %d characters does not fit in %d bytes: %w",
			f.offset, chars, length, ErrFormatCorruption)
	}
	if _, err := io.ReadFull(s, f.hash[:]); err != nil {
		return nil, corrupt("read content hash", err)
	}

	f.name, f.encodedName, err = readName(s, enc, chars)
	if err != nil {
		return nil, err
	}

	f.dataOffset = f.offset + FileHeaderSize + nameBytes(enc, chars)
	dataLength := int64(length) - (f.dataOffset - f.offset)
	if dataLength < 0 || dataLength > math.MaxInt32 {
		return nil, fmt.Errorf("file record %q at %d has length %d: %w", f.name, f.offset, length, ErrFormatCorruption)
	}
	f.dataLength = int32(dataLength)

	if _, err := s.Seek(f.dataOffset+dataLength, io.SeekStart); err != nil {
		return nil, corrupt("skip file content", err)
	}
	return f, nil
}

// NewFileRecord returns an empty, unplaced file record. Nothing is written until the
// first Write, or Serialize during a bulk build.
func NewFileRecord(c *Container, name string) (*FileRecord, error) {
	enc := c.Encoding()
	n, err := newNode(enc, name, false)
	if err != nil {
		return nil, err
	}
	f := &FileRecord{record: record{c: c}, node: n}
	f.length, err = fileRecordLength(enc, len(n.encodedName), 0)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Hash is the SHA-256 of the content as last written.
func (f *FileRecord) Hash() Hash { return f.hash }

// Digest is the content hash in "sha256:<hex>" form.
func (f *FileRecord) Digest() string { return f.hash.String() }

// ContentOffset is the absolute stream offset of the first content byte.
func (f *FileRecord) ContentOffset() int64 { return f.dataOffset }

// ContentLength is the number of content bytes.
func (f *FileRecord) ContentLength() int32 { return f.dataLength }

// Serialize writes the header and name at the current stream position and records where
// the record and its content start. Content bytes are not written.
// The container lock must be held.
func (f *FileRecord) Serialize() error {
	s := f.c.stream
	pos, err := position(s)
	if err != nil {
		return err
	}
	enc := f.c.Encoding()

	if err := writeFields(s, "write file record header",
		f.length, FileRecordTag, int32(f.charCount(enc)+1), f.hash[:]); err != nil {
		return err
	}
	if err := writeName(s, enc, f.encodedName); err != nil {
		return err
	}

	f.offset = pos
	f.dataOffset = pos + FileHeaderSize + int64(len(f.encodedName)+enc.CharWidth())
	return nil
}

// ReadAll returns the whole content.
func (f *FileRecord) ReadAll() ([]byte, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	return f.read(0, int64(f.dataLength))
}

// ReadRange returns n content bytes starting at off. A range reaching outside
// [0, ContentLength()] fails with ErrOutOfRange before touching the stream.
func (f *FileRecord) ReadRange(off, n int64) ([]byte, error) {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	if off < 0 || n < 0 || off > int64(f.dataLength) || n > int64(f.dataLength)-off {
		return nil, fmt.Errorf("read %q [%d, %d) of %d bytes: %w", f.Path(), off, off+n, f.dataLength, ErrOutOfRange)
	}
	return f.read(off, n)
}

func (f *FileRecord) read(off, n int64) ([]byte, error) {
	if err := f.c.flush(); err != nil {
		return nil, err
	}
	if err := seekTo(f.c.stream, f.dataOffset+off); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.c.stream, buf); err != nil {
		return nil, ioFail(fmt.Sprintf("read content of %q", f.Path()), err)
	}
	return buf, nil
}

// Write replaces the content and its hash.
//
// Content of the same length is overwritten in place, together with the hash field.
// Any other length cannot fit the record's slot, so the record moves: a new region comes
// from the container's allocator, or the end of the stream, the old one is released, and
// the parent directory entry is pointed at the new offset.
func (f *FileRecord) Write(content []byte) error {
	if len(content) > math.MaxInt32 {
		return fmt.Errorf("write %d bytes to %q: %w", len(content), f.Path(), ErrSizeOverflow)
	}
	hash := ContentHash(content)

	f.c.mu.Lock()
	defer f.c.mu.Unlock()

	return f.write(content, hash)
}

// write does the work of Write with the lock held.
func (f *FileRecord) write(content []byte, hash Hash) error {
	s := f.c.stream
	newLength := int32(len(content))

	if newLength != f.dataLength || !f.placed() {
		length, err := fileRecordLength(f.c.Encoding(), len(f.encodedName), newLength)
		if err != nil {
			return err
		}
		if err := f.relocate(length, newLength, hash); err != nil {
			return err
		}
	} else {
		if err := seekTo(s, f.offset+fileHashOffset); err != nil {
			return err
		}
		if err := writeFields(s, "write content hash", hash[:]); err != nil {
			return err
		}
		f.hash = hash
	}

	if err := seekTo(s, f.dataOffset); err != nil {
		return err
	}
	if _, err := s.Write(content); err != nil {
		return ioFail(fmt.Sprintf("write content of %q", f.Path()), err)
	}
	return f.c.flush()
}

func (f *FileRecord) relocate(length uint32, dataLength int32, hash Hash) error {
	oldOffset, oldLength := f.offset, f.length

	if _, err := f.c.place(length, oldOffset, oldLength); err != nil {
		return err
	}

	f.length = length
	f.dataLength = dataLength
	f.hash = hash
	if err := f.Serialize(); err != nil {
		return err
	}

	if oldOffset != 0 && f.parent != nil {
		if err := f.parent.repoint(oldOffset, f.offset); err != nil {
			return err
		}
	}

	f.c.logger.Debug("relocated file record",
		"path", f.Path(),
		"old_offset", oldOffset,
		"offset", f.offset,
		"length", f.length,
	)
	return nil
}
