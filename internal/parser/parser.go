package parser

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/mintypack/internal/ggpk"
	"github.com/ossyrian/mintypack/internal/logging"
)

// Reader reads the record tree of an existing container.
type Reader struct {
	file   ggpk.Stream
	logger *slog.Logger
	header *ggpk.HeaderRecord

	// visited holds every record offset read so far; a second visit means the
	// tree or the free chain loops.
	visited map[int64]bool
}

// NewReader returns a Reader over rws. A nil logger uses slog.Default.
func NewReader(rws io.ReadWriteSeeker, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		file:    ggpk.NewStream(rws),
		logger:  logger,
		visited: make(map[int64]bool),
	}
}

// ReadHeader reads the header record at offset 0.
// It fails if the record is not tagged "GGPK" or has the wrong length.
func (r *Reader) ReadHeader() (*ggpk.HeaderRecord, error) {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to header: %w: %w", ggpk.ErrIO, err)
	}

	h := &ggpk.HeaderRecord{}
	length, tag, err := r.readRecordHeader()
	if err != nil {
		return nil, err
	}
	if tag != ggpk.HeaderRecordTag {
		return nil, fmt.Errorf("invalid GGPK tag: expected %q, got %q: %w",
			tagString(ggpk.HeaderRecordTag), tagString(tag), ggpk.ErrFormatCorruption)
	}
	if length != ggpk.HeaderRecordSize {
		return nil, fmt.Errorf("invalid header length %d: %w", length, ggpk.ErrFormatCorruption)
	}
	h.Length = length

	var version uint32
	if err := binary.Read(r.file, ggpk.Endian, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w: %w", ggpk.ErrFormatCorruption, err)
	}
	h.Version = ggpk.FormatVersion(version)

	if err := binary.Read(r.file, ggpk.Endian, &h.RootOffset); err != nil {
		return nil, fmt.Errorf("failed to read root offset: %w: %w", ggpk.ErrFormatCorruption, err)
	}
	if err := binary.Read(r.file, ggpk.Endian, &h.FirstFreeOffset); err != nil {
		return nil, fmt.Errorf("failed to read first free offset: %w: %w", ggpk.ErrFormatCorruption, err)
	}
	if h.RootOffset < ggpk.HeaderRecordSize {
		return nil, fmt.Errorf("invalid root offset %d: %w", h.RootOffset, ggpk.ErrFormatCorruption)
	}

	r.logger.Info("header is valid",
		"version", h.Version,
		"root_offset", h.RootOffset,
		"first_free_offset", h.FirstFreeOffset,
	)

	r.header = h
	return h, nil
}

// DetectEncoding reports the name encoding the header's version selects.
// Versions other than 2, 3 and 4 are read as UTF-16 with a warning.
func (r *Reader) DetectEncoding() ggpk.NameEncoding {
	enc := r.header.Version.NameEncoding()
	switch r.header.Version {
	case 2, ggpk.VersionPC, ggpk.VersionMac:
		r.logger.Debug("detected name encoding", "version", r.header.Version, "encoding", enc)
	default:
		r.logger.Warn("unknown format version, assuming UTF-16 names", "version", r.header.Version)
	}
	return enc
}

// readRecordHeader reads the length and tag fields every record starts with.
func (r *Reader) readRecordHeader() (length, tag uint32, err error) {
	if err := binary.Read(r.file, ggpk.Endian, &length); err != nil {
		return 0, 0, fmt.Errorf("failed to read record length: %w: %w", ggpk.ErrFormatCorruption, err)
	}
	if err := binary.Read(r.file, ggpk.Endian, &tag); err != nil {
		return 0, 0, fmt.Errorf("failed to read record tag: %w: %w", ggpk.ErrFormatCorruption, err)
	}
	if length < ggpk.RecordHeaderSize {
		return 0, 0, fmt.Errorf("invalid record length %d: %w", length, ggpk.ErrFormatCorruption)
	}
	return length, tag, nil
}

// seekRecord moves to offset, refusing offsets already read.
func (r *Reader) seekRecord(offset int64) error {
	if r.visited[offset] {
		return fmt.Errorf("record at %d is referenced twice: %w", offset, ggpk.ErrFormatCorruption)
	}
	r.visited[offset] = true
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to record at %d: %w: %w", offset, ggpk.ErrIO, err)
	}
	return nil
}

// ReadNode reads the file or directory record at offset, and for a directory every record below it.
func (r *Reader) ReadNode(c *ggpk.Container, offset int64) (ggpk.Node, error) {
	if err := r.seekRecord(offset); err != nil {
		return nil, err
	}
	length, tag, err := r.readRecordHeader()
	if err != nil {
		return nil, fmt.Errorf("record at %d: %w", offset, err)
	}
	r.logger.Log(context.Background(), logging.LevelTrace, "read record",
		"offset", offset,
		"tag", tagString(tag),
		"length", length,
	)

	switch tag {
	case ggpk.FileRecordTag:
		f, err := ggpk.ReadFileRecord(c, length)
		if err != nil {
			return nil, fmt.Errorf("failed to read file record at %d: %w", offset, err)
		}
		return f, nil

	case ggpk.DirectoryRecordTag:
		return r.ReadDir(c, length)

	default:
		return nil, fmt.Errorf("unknown record tag %q at %d: %w", tagString(tag), offset, ggpk.ErrFormatCorruption)
	}
}

// ReadDir reads a directory record whose length and tag were just consumed, then its children.
func (r *Reader) ReadDir(c *ggpk.Container, length uint32) (*ggpk.DirectoryRecord, error) {
	d, err := ggpk.ReadDirectoryRecord(c, length)
	if err != nil {
		return nil, err
	}

	entries := d.Entries()
	r.logger.Debug("reading directory entries",
		"name", d.Name(),
		"offset", d.Offset(),
		"entry_count", len(entries),
	)

	for i, e := range entries {
		child, err := r.ReadNode(c, e.Offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %d of %q: %w", i, d.Name(), err)
		}
		if err := d.Attach(i, child); err != nil {
			return nil, err
		}

		r.logger.Debug("read directory entry",
			"index", i,
			"name", child.Name(),
			"name_hash", e.NameHash,
			"offset", e.Offset,
			"length", child.Length(),
		)
	}

	return d, nil
}

// ReadFreeList follows the FREE chain from the header into c's free list.
func (r *Reader) ReadFreeList(c *ggpk.Container) error {
	free := c.FreeList()
	for next := r.header.FirstFreeOffset; next != 0; {
		if err := r.seekRecord(next); err != nil {
			return err
		}
		length, tag, err := r.readRecordHeader()
		if err != nil {
			return fmt.Errorf("free record at %d: %w", next, err)
		}
		if tag != ggpk.FreeRecordTag {
			return fmt.Errorf("free chain reaches %q record at %d: %w", tagString(tag), next, ggpk.ErrFormatCorruption)
		}
		rec, err := ggpk.ReadFreeRecord(r.file, length)
		if err != nil {
			return err
		}
		free.Append(rec)
		next = rec.NextOffset
	}

	r.logger.Debug("read free list",
		"records", len(free.Records()),
		"bytes", free.Size(),
	)
	return nil
}

// Open reads the container in rws: header, record tree and free chain.
func Open(rws io.ReadWriteSeeker, logger *slog.Logger, opts ...ggpk.Option) (*ggpk.Container, error) {
	reader := NewReader(rws, logger)

	header, err := reader.ReadHeader()
	if err != nil {
		return nil, err
	}
	reader.DetectEncoding()

	opts = append([]ggpk.Option{ggpk.WithLogger(reader.logger)}, opts...)
	c := ggpk.NewContainer(reader.file, header, opts...)

	c.Lock()
	defer c.Unlock()

	root, err := reader.ReadNode(c, header.RootOffset)
	if err != nil {
		return nil, err
	}
	dir, ok := root.(*ggpk.DirectoryRecord)
	if !ok {
		return nil, fmt.Errorf("root record at %d is not a directory: %w", header.RootOffset, ggpk.ErrFormatCorruption)
	}
	c.SetRoot(dir)

	if err := reader.ReadFreeList(c); err != nil {
		return nil, err
	}

	reader.logger.Info("read container",
		"records", len(reader.visited),
		"free_bytes", c.FreeList().Size(),
	)
	return c, nil
}

// tagString renders a record tag as its four ASCII bytes.
func tagString(tag uint32) string {
	var b [4]byte
	ggpk.Endian.PutUint32(b[:], tag)
	return string(b[:])
}
