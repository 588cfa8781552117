package ggpk

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/opencontainers/go-digest"
	"github.com/spaolacci/murmur3"
	"golang.org/x/text/cases"
)

// DirectoryEntry points at one child record of a directory.
type DirectoryEntry struct {
	NameHash uint32 // murmur3 of the case-folded child name
	Offset   int64  // absolute offset of the child record
}

// DirectoryRecord is a "PDIR" record. Entries are kept sorted by name hash.
//
//	length      uint32
//	tag         uint32  "PDIR"
//	nameLength  int32   characters including the terminator
//	entryCount  int32
//	hash        [32]byte  sha256 over the children's hashes, in entry order
//	name        (nameLength) * 2 or 4 bytes, NUL terminated
//	entries     entryCount * {nameHash uint32, offset int64}
type DirectoryRecord struct {
	record
	node

	hash     Hash
	entries  []DirectoryEntry
	children []Node // children[i] is the record entries[i] points at

	entriesOffset int64
}

// NameHash is the hash a directory entry stores for name.
func NameHash(name string) uint32 {
	return murmur3.Sum32([]byte(cases.Fold().String(name)))
}

func directoryRecordLength(enc NameEncoding, encodedNameLen, entries int) (uint32, error) {
	n := uint64(encodedNameLen) + uint64(enc.CharWidth()) + DirectoryHeaderSize + uint64(entries)*DirectoryEntrySize
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("directory record of %d entries: %w", entries, ErrSizeOverflow)
	}
	return uint32(n), nil
}

// ReadDirectoryRecord parses a directory record. The stream must be positioned just past the
// record's length and tag fields and the container lock held. Children are left unresolved;
// the caller reads each entry and attaches it with Attach.
func ReadDirectoryRecord(c *Container, length uint32) (*DirectoryRecord, error) {
	s := c.stream
	pos, err := position(s)
	if err != nil {
		return nil, err
	}
	d := &DirectoryRecord{record: record{c: c, offset: pos - RecordHeaderSize, length: length}}

	chars, err := readNameLength(s)
	if err != nil {
		return nil, err
	}
	var count int32
	if err := binary.Read(s, Endian, &count); err != nil {
		return nil, corrupt("read entry count", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("directory at %d has %d entries: %w", d.offset, count, ErrFormatCorruption)
	}
	enc := c.Encoding()
	need := DirectoryHeaderSize + nameBytes(enc, chars) + int64(count)*DirectoryEntrySize
	if need > int64(length) {
		return nil, fmt.Errorf("directory at %d: name of %d characters and %d entries do not fit in %d bytes: %w",
			d.offset, chars, count, length, ErrFormatCorruption)
	}
	if _, err := io.ReadFull(s, d.hash[:]); err != nil {
		return nil, corrupt("read directory hash", err)
	}

	d.name, d.encodedName, err = readName(s, enc, chars)
	if err != nil {
		return nil, err
	}

	d.entriesOffset = d.offset + DirectoryHeaderSize + int64(len(d.encodedName)+enc.CharWidth())
	d.entries = make([]DirectoryEntry, count)
	if err := binary.Read(s, Endian, d.entries); err != nil {
		return nil, corrupt("read directory entries", err)
	}
	d.children = make([]Node, count)
	return d, nil
}

// NewDirectoryRecord returns an empty, unplaced directory.
func NewDirectoryRecord(c *Container, name string) (*DirectoryRecord, error) {
	return newDirectoryRecord(c, name, false)
}

func newDirectoryRecord(c *Container, name string, root bool) (*DirectoryRecord, error) {
	enc := c.Encoding()
	n, err := newNode(enc, name, root)
	if err != nil {
		return nil, err
	}
	d := &DirectoryRecord{record: record{c: c}, node: n}
	d.length, err = directoryRecordLength(enc, len(n.encodedName), 0)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DirectoryRecord) Hash() Hash { return d.hash }

// Entries returns a copy of the stored entries.
func (d *DirectoryRecord) Entries() []DirectoryEntry {
	return append([]DirectoryEntry(nil), d.entries...)
}

// Children returns the resolved children in entry order.
func (d *DirectoryRecord) Children() []Node {
	return append([]Node(nil), d.children...)
}

// Attach resolves entry i to n, a record read from the entry's offset.
func (d *DirectoryRecord) Attach(i int, n Node) error {
	if i < 0 || i >= len(d.entries) {
		return fmt.Errorf("attach entry %d of %q: %w", i, d.Path(), ErrOutOfRange)
	}
	if n.Offset() != d.entries[i].Offset {
		return fmt.Errorf("entry %d of %q points at %d, record is at %d: %w",
			i, d.Path(), d.entries[i].Offset, n.Offset(), ErrFormatCorruption)
	}
	switch child := n.(type) {
	case *FileRecord:
		child.parent = d
	case *DirectoryRecord:
		child.parent = d
	}
	d.children[i] = n
	return nil
}

// Child returns the child called name, compared case-insensitively, or nil.
func (d *DirectoryRecord) Child(name string) Node {
	i := d.indexOf(name)
	if i < 0 {
		return nil
	}
	return d.children[i]
}

func (d *DirectoryRecord) indexOf(name string) int {
	h := NameHash(name)
	fold := cases.Fold()
	want := fold.String(name)
	i := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].NameHash >= h })
	for ; i < len(d.entries) && d.entries[i].NameHash == h; i++ {
		if c := d.children[i]; c != nil && fold.String(c.Name()) == want {
			return i
		}
	}
	return -1
}

// Find resolves a '/'-separated path below d. An empty path returns d.
func (d *DirectoryRecord) Find(path string) (Node, error) {
	var cur Node = d
	for _, part := range splitPath(path) {
		dir, ok := cur.(*DirectoryRecord)
		if !ok {
			return nil, fmt.Errorf("find %q: %q is a file: %w", path, cur.Path(), ErrNotFound)
		}
		cur = dir.Child(part)
		if cur == nil {
			return nil, fmt.Errorf("find %q: %w", path, ErrNotFound)
		}
	}
	return cur, nil
}

// Serialize writes the whole record at the current stream position.
// The container lock must be held.
func (d *DirectoryRecord) Serialize() error {
	s := d.c.stream
	pos, err := position(s)
	if err != nil {
		return err
	}
	enc := d.c.Encoding()

	if err := writeFields(s, "write directory record header",
		d.length, DirectoryRecordTag, int32(d.charCount(enc)+1), int32(len(d.entries)), d.hash[:]); err != nil {
		return err
	}
	if err := writeName(s, enc, d.encodedName); err != nil {
		return err
	}
	if err := writeFields(s, "write directory entries", d.entries); err != nil {
		return err
	}

	d.offset = pos
	d.entriesOffset = pos + DirectoryHeaderSize + int64(len(d.encodedName)+enc.CharWidth())
	return nil
}

// AddFile creates a file called name holding content.
func (d *DirectoryRecord) AddFile(name string, content []byte) (*FileRecord, error) {
	if len(content) > math.MaxInt32 {
		return nil, fmt.Errorf("add %d bytes as %q: %w", len(content), name, ErrSizeOverflow)
	}
	hash := ContentHash(content)

	d.c.mu.Lock()
	defer d.c.mu.Unlock()

	if d.indexOf(name) >= 0 {
		return nil, fmt.Errorf("add %q to %q: %w", name, d.Path(), ErrExist)
	}
	f, err := NewFileRecord(d.c, name)
	if err != nil {
		return nil, err
	}
	f.parent = d
	if err := f.write(content, hash); err != nil {
		return nil, err
	}
	d.insert(f)
	if err := d.rewrite(); err != nil {
		return nil, err
	}
	return f, d.c.flush()
}

// AddDirectory creates an empty subdirectory called name.
func (d *DirectoryRecord) AddDirectory(name string) (*DirectoryRecord, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()

	if d.indexOf(name) >= 0 {
		return nil, fmt.Errorf("add %q to %q: %w", name, d.Path(), ErrExist)
	}
	sub, err := NewDirectoryRecord(d.c, name)
	if err != nil {
		return nil, err
	}
	sub.parent = d
	if err := sub.rewrite(); err != nil {
		return nil, err
	}
	d.insert(sub)
	if err := d.rewrite(); err != nil {
		return nil, err
	}
	return sub, d.c.flush()
}

// Remove deletes the child called name and returns its space, and that of everything
// below it, to the allocator.
func (d *DirectoryRecord) Remove(name string) error {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()

	i := d.indexOf(name)
	if i < 0 {
		return fmt.Errorf("remove %q from %q: %w", name, d.Path(), ErrNotFound)
	}
	child := d.children[i]
	if err := walk(child, func(n Node) error {
		return d.c.allocator.Release(n.Offset(), n.Length())
	}); err != nil {
		return err
	}

	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	d.children = append(d.children[:i], d.children[i+1:]...)
	if err := d.rewrite(); err != nil {
		return err
	}
	return d.c.flush()
}

// insert adds n to the in-memory entries at its hash position. n must be placed.
func (d *DirectoryRecord) insert(n Node) {
	h := NameHash(n.Name())
	i := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].NameHash > h })
	d.entries = append(d.entries, DirectoryEntry{})
	copy(d.entries[i+1:], d.entries[i:])
	d.entries[i] = DirectoryEntry{NameHash: h, Offset: n.Offset()}
	d.children = append(d.children, nil)
	copy(d.children[i+1:], d.children[i:])
	d.children[i] = n
}

// rewrite moves d to a slot that fits its current entries, refreshes its hash and
// points its parent (or the header, for the root) at the new offset.
func (d *DirectoryRecord) rewrite() error {
	enc := d.c.Encoding()
	length, err := directoryRecordLength(enc, len(d.encodedName), len(d.entries))
	if err != nil {
		return err
	}
	d.hash = d.childrenHash()

	oldOffset, oldLength := d.offset, d.length
	if _, err := d.c.place(length, oldOffset, oldLength); err != nil {
		return err
	}
	d.length = length
	if err := d.Serialize(); err != nil {
		return err
	}

	switch {
	case d.parent != nil && oldOffset != 0:
		err = d.parent.repoint(oldOffset, d.offset)
	case d.parent == nil && d == d.c.root:
		err = d.c.header.setRootOffset(d.c.stream, d.offset)
	}
	if err != nil {
		return err
	}

	d.c.logger.Debug("rewrote directory record",
		"path", d.Path(),
		"old_offset", oldOffset,
		"offset", d.offset,
		"entries", len(d.entries),
	)
	return nil
}

// repoint updates, in place, the entry that referenced a child at oldOffset.
func (d *DirectoryRecord) repoint(oldOffset, newOffset int64) error {
	for i := range d.entries {
		if d.entries[i].Offset != oldOffset {
			continue
		}
		if err := seekTo(d.c.stream, d.entriesOffset+int64(i)*DirectoryEntrySize+4); err != nil {
			return err
		}
		if err := writeFields(d.c.stream, "write entry offset", newOffset); err != nil {
			return err
		}
		d.entries[i].Offset = newOffset
		return nil
	}
	return fmt.Errorf("directory %q has no entry at %d: %w", d.Path(), oldOffset, ErrNotFound)
}

// childrenHash is the sha256 over the children's hashes in entry order.
func (d *DirectoryRecord) childrenHash() Hash {
	dg := digest.SHA256.Digester()
	for _, c := range d.children {
		if c == nil {
			continue
		}
		h := c.Hash()
		_, _ = dg.Hash().Write(h[:]) // hash writes never fail
	}
	return hashFromDigest(dg.Digest())
}
