package ggpk

import (
	"fmt"
	"strings"
)

// Node is a file or directory in the container tree.
type Node interface {
	Name() string
	// Path is the '/'-separated path from the root; the root's path is empty.
	Path() string
	Parent() *DirectoryRecord
	Offset() int64
	Length() uint32
	Hash() Hash
}

var (
	_ Node = (*FileRecord)(nil)
	_ Node = (*DirectoryRecord)(nil)
)

// record holds the fields every stored record has.
// An offset of 0 means the record has not been placed in the stream yet;
// offset 0 always belongs to the header record.
type record struct {
	c      *Container
	offset int64
	length uint32
}

// Offset is the absolute stream offset of the record's length field.
func (r *record) Offset() int64 { return r.offset }

// Length is the stored length of the whole record, including its length field.
func (r *record) Length() uint32 { return r.length }

func (r *record) placed() bool { return r.offset != 0 }

// node holds the tree linkage shared by files and directories.
type node struct {
	name        string
	encodedName []byte
	parent      *DirectoryRecord
}

func (n *node) Name() string { return n.name }

func (n *node) Parent() *DirectoryRecord { return n.parent }

func (n *node) Path() string {
	if n.parent == nil {
		return n.name
	}
	parentPath := n.parent.Path()
	if parentPath == "" {
		return n.name
	}
	return parentPath + "/" + n.name
}

// newNode validates and encodes name. The root directory is the only node with an empty name.
func newNode(enc NameEncoding, name string, root bool) (node, error) {
	if !root && (name == "" || strings.ContainsAny(name, "/\x00")) {
		return node{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	encoded, err := enc.Encode(name)
	if err != nil {
		return node{}, err
	}
	return node{name: name, encodedName: encoded}, nil
}

// charCount is the stored character count of the name, without the terminator.
func (n *node) charCount(enc NameEncoding) int {
	return len(n.encodedName) / enc.CharWidth()
}
