package ggpk_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossyrian/mintypack/internal/ggpk"
	"github.com/ossyrian/mintypack/internal/testutil"
)

func TestFreeListFirstFit(t *testing.T) {
	c, mem := newContainer(t, ggpk.VersionPC)
	l := c.FreeList()

	c.Lock()
	defer c.Unlock()

	flushed := func() []byte {
		require.NoError(t, c.Stream().Flush())
		return mem.Bytes()
	}

	require.NoError(t, l.Release(1000, 100))
	require.NoError(t, l.Release(2000, 64))

	raw := flushed()
	assert.EqualValues(t, 1000, c.Header().FirstFreeOffset)
	assert.EqualValues(t, 1000, ggpk.Endian.Uint64(raw[20:28]), "header links the first record")
	assert.EqualValues(t, 100, ggpk.Endian.Uint32(raw[1000:1004]))
	assert.Equal(t, []byte("FREE"), raw[1004:1008])
	assert.EqualValues(t, 2000, ggpk.Endian.Uint64(raw[1008:1016]), "released region is linked at the tail")
	assert.Equal(t, []ggpk.FreeRecord{
		{Offset: 1000, Length: 100, NextOffset: 2000},
		{Offset: 2000, Length: 64},
	}, l.Records())
	assert.EqualValues(t, 164, l.Size())

	// 100 bytes is not an exact fit but leaves a valid record behind: the tail is handed out.
	off, ok, err := l.Acquire(64)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1036, off)
	assert.EqualValues(t, 36, ggpk.Endian.Uint32(flushed()[1000:1004]), "shrunk record is rewritten")

	// The shrunk record is too small now, the exact match is unlinked.
	off, ok, err = l.Acquire(64)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2000, off)
	assert.Equal(t, []ggpk.FreeRecord{{Offset: 1000, Length: 36}}, l.Records())
	assert.Zero(t, ggpk.Endian.Uint64(flushed()[1008:1016]))

	// A split that would leave fewer than 16 bytes is refused.
	_, ok, err = l.Acquire(30)
	require.NoError(t, err)
	assert.False(t, ok)

	off, ok, err = l.Acquire(36)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1000, off)
	assert.Empty(t, l.Records())
	assert.Zero(t, c.Header().FirstFreeOffset)
	assert.Zero(t, ggpk.Endian.Uint64(flushed()[20:28]))
}

func TestFreeListReleaseTooSmall(t *testing.T) {
	c, _ := newContainer(t, ggpk.VersionPC)

	c.Lock()
	defer c.Unlock()

	err := c.FreeList().Release(1000, ggpk.FreeRecordMinSize-1)
	assert.ErrorIs(t, err, ggpk.ErrRegionTooSmall)
	assert.Empty(t, c.FreeList().Records())
}

func TestReadFreeRecord(t *testing.T) {
	tests := []struct {
		name    string
		length  uint32
		next    []byte
		want    *ggpk.FreeRecord
		wantErr error
	}{
		{
			name:   "valid",
			length: 64,
			next:   binary.LittleEndian.AppendUint64(nil, 500),
			want:   &ggpk.FreeRecord{Offset: 0, Length: 64, NextOffset: 500},
		},
		{
			name:    "shorter than a free record",
			length:  12,
			next:    make([]byte, 8),
			wantErr: ggpk.ErrFormatCorruption,
		},
		{
			name:    "truncated next offset",
			length:  16,
			next:    []byte{1, 2, 3},
			wantErr: ggpk.ErrFormatCorruption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b bytes.Buffer
			_ = binary.Write(&b, ggpk.Endian, tt.length)
			_ = binary.Write(&b, ggpk.Endian, ggpk.FreeRecordTag)
			b.Write(tt.next)

			r := testutil.NewMemStream(b.Bytes())
			_, err := r.Seek(ggpk.RecordHeaderSize, io.SeekStart)
			require.NoError(t, err)

			got, err := ggpk.ReadFreeRecord(r, tt.length)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
