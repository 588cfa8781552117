package ggpk_test

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossyrian/mintypack/internal/ggpk"
	"github.com/ossyrian/mintypack/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newContainer creates an empty in-memory container.
func newContainer(t *testing.T, version ggpk.FormatVersion, opts ...ggpk.Option) (*ggpk.Container, *testutil.MemStream) {
	t.Helper()

	mem := testutil.NewMemStream(nil)
	opts = append([]ggpk.Option{ggpk.WithLogger(discardLogger())}, opts...)
	c, err := ggpk.Create(mem, version, opts...)
	require.NoError(t, err)
	return c, mem
}

// reparseFile reads the file record at offset the way a container walk does:
// length and tag first, then the rest.
func reparseFile(t *testing.T, c *ggpk.Container, offset int64) *ggpk.FileRecord {
	t.Helper()

	c.Lock()
	defer c.Unlock()

	s := c.Stream()
	_, err := s.Seek(offset, io.SeekStart)
	require.NoError(t, err)

	var length, tag uint32
	require.NoError(t, binary.Read(s, ggpk.Endian, &length))
	require.NoError(t, binary.Read(s, ggpk.Endian, &tag))
	require.Equal(t, ggpk.FileRecordTag, tag)

	f, err := ggpk.ReadFileRecord(c, length)
	require.NoError(t, err)
	return f
}

type region struct {
	offset int64
	size   uint32
}

var errReleaseRefused = errors.New("release refused")

// recordingAllocator remembers every call. It has no free space unless offer holds
// offsets to hand out, and refuses to release the region at refuse.
type recordingAllocator struct {
	acquired []uint32
	released []region

	offer  []int64
	refuse int64
}

func (a *recordingAllocator) Acquire(size uint32) (int64, bool, error) {
	a.acquired = append(a.acquired, size)
	if len(a.offer) == 0 {
		return 0, false, nil
	}
	off := a.offer[0]
	a.offer = a.offer[1:]
	return off, true, nil
}

func (a *recordingAllocator) Release(offset int64, size uint32) error {
	if a.refuse != 0 && offset == a.refuse {
		return errReleaseRefused
	}
	a.released = append(a.released, region{offset, size})
	return nil
}
