package ggpk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Allocator hands out and takes back regions of a container stream.
// Both methods are called with the container lock held.
type Allocator interface {
	// Acquire returns the offset of a region of exactly size bytes that the caller may
	// overwrite, or ok=false when nothing fits and the caller should append at the end.
	Acquire(size uint32) (offset int64, ok bool, err error)
	// Release marks [offset, offset+size) as free.
	Release(offset int64, size uint32) error
}

// Container is an open pack file: the stream, the lock guarding it and the record tree.
type Container struct {
	// mu guards the stream cursor, the free list and every record field a write changes.
	mu sync.Mutex

	stream    Stream
	header    *HeaderRecord
	root      *DirectoryRecord
	free      *FreeList
	allocator Allocator
	logger    *slog.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithAllocator replaces the container's free list as the source of relocation targets.
func WithAllocator(a Allocator) Option {
	return func(c *Container) {
		c.allocator = a
	}
}

// WithLogger sets the logger used for relocation and free list messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Container) {
		c.logger = l
	}
}

// NewContainer wraps an already laid out stream. The caller attaches the root with SetRoot.
func NewContainer(stream Stream, header *HeaderRecord, opts ...Option) *Container {
	c := &Container{
		stream: stream,
		header: header,
		logger: slog.Default(),
	}
	c.free = &FreeList{c: c}
	c.allocator = c.free
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create writes an empty container (header and root directory) to rws.
func Create(rws io.ReadWriteSeeker, version FormatVersion, opts ...Option) (*Container, error) {
	c := NewContainer(NewStream(rws), &HeaderRecord{Version: version, RootOffset: HeaderRecordSize}, opts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.header.serialize(c.stream); err != nil {
		return nil, err
	}
	root, err := newDirectoryRecord(c, "", true)
	if err != nil {
		return nil, err
	}
	if err := root.Serialize(); err != nil {
		return nil, err
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	c.root = root

	c.logger.Debug("created container", "version", version, "root_offset", root.offset)
	return c, nil
}

// Lock acquires exclusive access to the stream. Records take it themselves;
// callers that drive Serialize or the parse functions directly must hold it.
func (c *Container) Lock() { c.mu.Lock() }

// Unlock releases the stream lock.
func (c *Container) Unlock() { c.mu.Unlock() }

// Stream returns the underlying stream. Use it only while holding the lock.
func (c *Container) Stream() Stream { return c.stream }

func (c *Container) Header() *HeaderRecord { return c.header }

func (c *Container) Version() FormatVersion { return c.header.Version }

// Encoding is the name encoding selected by the container's format version.
func (c *Container) Encoding() NameEncoding { return c.header.Version.NameEncoding() }

func (c *Container) Root() *DirectoryRecord { return c.root }

// SetRoot attaches the root directory of a parsed container.
func (c *Container) SetRoot(root *DirectoryRecord) {
	root.parent = nil
	c.root = root
}

// FreeList is the container's own free space list, regardless of the allocator in use.
func (c *Container) FreeList() *FreeList { return c.free }

func (c *Container) Logger() *slog.Logger { return c.logger }

// Find returns the node at path, relative to the root.
func (c *Container) Find(path string) (Node, error) {
	if c.root == nil {
		return nil, fmt.Errorf("find %q: %w", path, ErrNotFound)
	}
	return c.root.Find(path)
}

// File returns the file record at path.
func (c *Container) File(path string) (*FileRecord, error) {
	n, err := c.Find(path)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*FileRecord)
	if !ok {
		return nil, fmt.Errorf("%q is a directory: %w", path, ErrNotFound)
	}
	return f, nil
}

// Walk calls fn for every node, parents before children, starting at the root.
// It must not run concurrently with AddFile, AddDirectory or Remove.
func (c *Container) Walk(fn func(Node) error) error {
	if c.root == nil {
		return nil
	}
	return walk(c.root, fn)
}

func walk(n Node, fn func(Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	d, ok := n.(*DirectoryRecord)
	if !ok {
		return nil
	}
	for _, child := range d.children {
		if child == nil {
			continue
		}
		if err := walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// place finds room for a record of size bytes and leaves the stream positioned there.
// The region at oldOffset, if the record had one, is released after the new one is acquired
// so a record never gets its own slot back. If that release fails, the acquired region is
// released again and the record keeps its old slot.
func (c *Container) place(size uint32, oldOffset int64, oldSize uint32) (int64, error) {
	offset, ok, err := c.allocator.Acquire(size)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire %d bytes: %w", size, err)
	}
	if oldOffset != 0 {
		if err := c.allocator.Release(oldOffset, oldSize); err != nil {
			err = fmt.Errorf("failed to release record at %d: %w", oldOffset, err)
			if ok {
				// the record stays where it was, so the acquired region goes back
				if rerr := c.allocator.Release(offset, size); rerr != nil {
					err = errors.Join(err, fmt.Errorf("failed to return region at %d: %w", offset, rerr))
				}
			}
			return 0, err
		}
	}

	if ok {
		if err := seekTo(c.stream, offset); err != nil {
			return 0, err
		}
	} else {
		offset, err = c.stream.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, ioFail("seek to end of stream", err)
		}
	}

	c.logger.Debug("placing record",
		"size", size,
		"offset", offset,
		"reused_free_space", ok,
		"old_offset", oldOffset,
		"old_size", oldSize,
	)
	return offset, nil
}

func (c *Container) flush() error {
	if err := c.stream.Flush(); err != nil {
		return ioFail("flush stream", err)
	}
	return nil
}

// splitPath turns "a/b/c" into its non-empty components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}
