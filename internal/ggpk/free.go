package ggpk

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FreeRecord is a "FREE" region of the stream available for reuse.
// Only its first 16 bytes are meaningful; the rest of Length is garbage.
type FreeRecord struct {
	Offset     int64
	Length     uint32
	NextOffset int64
}

// ReadFreeRecord parses a FREE record. The stream must be positioned just past its
// length and tag fields.
func ReadFreeRecord(r io.ReadSeeker, length uint32) (*FreeRecord, error) {
	pos, err := position(r)
	if err != nil {
		return nil, err
	}
	if length < FreeRecordMinSize {
		return nil, fmt.Errorf("free record at %d has length %d: %w", pos-RecordHeaderSize, length, ErrFormatCorruption)
	}
	rec := &FreeRecord{Offset: pos - RecordHeaderSize, Length: length}
	if err := binary.Read(r, Endian, &rec.NextOffset); err != nil {
		return nil, corrupt("read next free offset", err)
	}
	return rec, nil
}

// FreeList is the chain of FREE records starting at the header's first free offset.
// It implements Allocator with a first-fit policy; adjacent regions are never merged.
type FreeList struct {
	c       *Container
	records []*FreeRecord
}

var _ Allocator = (*FreeList)(nil)

// Append adds a record read from the stream to the end of the in-memory chain. No I/O happens.
func (l *FreeList) Append(rec *FreeRecord) {
	l.records = append(l.records, rec)
}

// Records returns a copy of the chain in link order.
func (l *FreeList) Records() []FreeRecord {
	out := make([]FreeRecord, len(l.records))
	for i, r := range l.records {
		out[i] = *r
	}
	return out
}

// Size is the total number of bytes held by the chain.
func (l *FreeList) Size() int64 {
	var n int64
	for _, r := range l.records {
		n += int64(r.Length)
	}
	return n
}

// Acquire takes the first record that either matches size exactly or is large enough to
// stay a valid FREE record after giving up size bytes from its tail.
func (l *FreeList) Acquire(size uint32) (int64, bool, error) {
	for i, rec := range l.records {
		switch {
		case rec.Length == size:
			if err := l.unlink(i); err != nil {
				return 0, false, err
			}
			l.c.logger.Debug("reusing free record", "offset", rec.Offset, "size", size)
			return rec.Offset, true, nil

		case rec.Length > size && rec.Length-size >= FreeRecordMinSize:
			remaining := rec.Length - size
			if err := seekTo(l.c.stream, rec.Offset); err != nil {
				return 0, false, err
			}
			if err := writeFields(l.c.stream, "shrink free record", remaining); err != nil {
				return 0, false, err
			}
			rec.Length = remaining
			offset := rec.Offset + int64(remaining)
			l.c.logger.Debug("splitting free record",
				"offset", rec.Offset,
				"remaining", remaining,
				"acquired_offset", offset,
				"size", size,
			)
			return offset, true, nil
		}
	}
	return 0, false, nil
}

// Release overwrites the region with a FREE record and links it at the end of the chain.
// Regions smaller than FreeRecordMinSize fail with ErrRegionTooSmall.
func (l *FreeList) Release(offset int64, size uint32) error {
	if size < FreeRecordMinSize {
		return fmt.Errorf("cannot free %d bytes at %d: %w", size, offset, ErrRegionTooSmall)
	}
	s := l.c.stream
	if err := seekTo(s, offset); err != nil {
		return err
	}
	if err := writeFields(s, "write free record", size, FreeRecordTag, int64(0)); err != nil {
		return err
	}

	rec := &FreeRecord{Offset: offset, Length: size}
	if err := l.setNext(len(l.records)-1, offset); err != nil {
		return err
	}
	l.records = append(l.records, rec)

	l.c.logger.Debug("released record", "offset", offset, "size", size)
	return nil
}

// unlink removes records[i] from the chain, pointing its predecessor at its successor.
func (l *FreeList) unlink(i int) error {
	if err := l.setNext(i-1, l.records[i].NextOffset); err != nil {
		return err
	}
	l.records = append(l.records[:i], l.records[i+1:]...)
	return nil
}

// setNext rewrites the link held by records[i], or by the header when i is -1.
func (l *FreeList) setNext(i int, next int64) error {
	if i < 0 {
		return l.c.header.setFirstFreeOffset(l.c.stream, next)
	}
	rec := l.records[i]
	if err := seekTo(l.c.stream, rec.Offset+RecordHeaderSize); err != nil {
		return err
	}
	if err := writeFields(l.c.stream, "write next free offset", next); err != nil {
		return err
	}
	rec.NextOffset = next
	return nil
}
