package ggpk

import (
	"errors"
	"fmt"
)

var (
	// ErrFormatCorruption is returned when stream bytes do not have the shape of a record.
	ErrFormatCorruption = errors.New("ggpk: corrupt record")

	// ErrOutOfRange is returned when a content range falls outside a file's content.
	ErrOutOfRange = errors.New("ggpk: range out of bounds")

	// ErrIO is returned when the underlying stream fails to seek, read, write or flush.
	ErrIO = errors.New("ggpk: stream i/o failed")

	// ErrHashMismatch is returned when file content does not match its stored hash.
	ErrHashMismatch = errors.New("ggpk: hash verification failed")

	// ErrSizeOverflow is returned when content or a record exceeds the sizes the format can store.
	ErrSizeOverflow = errors.New("ggpk: size overflow")

	// ErrRegionTooSmall is returned when a released region cannot hold a FREE record.
	ErrRegionTooSmall = errors.New("ggpk: region too small to free")

	// ErrNotFound is returned when a path does not name a node in the tree.
	ErrNotFound = errors.New("ggpk: no such entry")

	// ErrInvalidName is returned for names that cannot be stored in a directory.
	ErrInvalidName = errors.New("ggpk: invalid entry name")

	// ErrExist is returned when adding a child whose name is already taken.
	ErrExist = errors.New("ggpk: entry already exists")
)

// corrupt wraps a parse failure so it matches ErrFormatCorruption and keeps the cause.
func corrupt(step string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", step, ErrFormatCorruption, err)
}

// ioFail wraps a stream failure so it matches ErrIO and keeps the cause.
func ioFail(step string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", step, ErrIO, err)
}
