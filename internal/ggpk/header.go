package ggpk

import "io"

// HeaderRecord is the "GGPK" record at offset 0 of every container.
type HeaderRecord struct {
	Length          uint32
	Version         FormatVersion
	RootOffset      int64
	FirstFreeOffset int64
}

const (
	headerRootOffsetField = RecordHeaderSize + 4
	headerFreeOffsetField = headerRootOffsetField + 8
)

// serialize writes the whole header at offset 0.
func (h *HeaderRecord) serialize(s io.WriteSeeker) error {
	h.Length = HeaderRecordSize
	if err := seekTo(s, 0); err != nil {
		return err
	}
	return writeFields(s, "write header record",
		h.Length, HeaderRecordTag, uint32(h.Version), h.RootOffset, h.FirstFreeOffset)
}

func (h *HeaderRecord) setRootOffset(s io.WriteSeeker, offset int64) error {
	if err := seekTo(s, headerRootOffsetField); err != nil {
		return err
	}
	if err := writeFields(s, "write root offset", offset); err != nil {
		return err
	}
	h.RootOffset = offset
	return nil
}

func (h *HeaderRecord) setFirstFreeOffset(s io.WriteSeeker, offset int64) error {
	if err := seekTo(s, headerFreeOffsetField); err != nil {
		return err
	}
	if err := writeFields(s, "write first free offset", offset); err != nil {
		return err
	}
	h.FirstFreeOffset = offset
	return nil
}
