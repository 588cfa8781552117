package parser_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossyrian/mintypack/internal/ggpk"
	"github.com/ossyrian/mintypack/internal/logging"
	"github.com/ossyrian/mintypack/internal/parser"
	"github.com/ossyrian/mintypack/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildHeader creates a header record byte sequence for testing
func buildHeader(length uint32, tag string, version uint32, rootOffset, firstFree int64) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, length)
	buf.WriteString(tag)
	binary.Write(buf, binary.LittleEndian, version)
	binary.Write(buf, binary.LittleEndian, rootOffset)
	binary.Write(buf, binary.LittleEndian, firstFree)
	return buf.Bytes()
}

func TestReader_ReadHeader(t *testing.T) {
	valid := buildHeader(28, "GGPK", 3, 28, 0)

	tests := []struct {
		name   string
		input  []byte
		want   *ggpk.HeaderRecord
		errMsg string
	}{
		{
			name:  "valid header",
			input: valid,
			want:  &ggpk.HeaderRecord{Length: 28, Version: ggpk.VersionPC, RootOffset: 28},
		},
		{
			name:  "valid header with free chain",
			input: buildHeader(28, "GGPK", 4, 4096, 512),
			want:  &ggpk.HeaderRecord{Length: 28, Version: ggpk.VersionMac, RootOffset: 4096, FirstFreeOffset: 512},
		},
		{
			name:   "invalid tag",
			input:  buildHeader(28, "GGPX", 3, 28, 0),
			errMsg: "invalid GGPK tag",
		},
		{
			name:   "invalid length",
			input:  buildHeader(32, "GGPK", 3, 28, 0),
			errMsg: "invalid header length",
		},
		{
			name:   "root offset inside header",
			input:  buildHeader(28, "GGPK", 3, 12, 0),
			errMsg: "invalid root offset",
		},
		{
			name:   "empty input",
			input:  []byte{},
			errMsg: "failed to read record length",
		},
		{
			name:   "EOF when reading tag",
			input:  valid[:6],
			errMsg: "failed to read record tag",
		},
		{
			name:   "EOF when reading version",
			input:  valid[:10],
			errMsg: "failed to read version",
		},
		{
			name:   "EOF when reading root offset",
			input:  valid[:16],
			errMsg: "failed to read root offset",
		},
		{
			name:   "EOF when reading first free offset",
			input:  valid[:27],
			errMsg: "failed to read first free offset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parser.NewReader(testutil.NewMemStream(tt.input), discardLogger())

			got, err := r.ReadHeader()
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ggpk.ErrFormatCorruption)
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReader_DetectEncoding(t *testing.T) {
	tests := []struct {
		version uint32
		want    ggpk.NameEncoding
	}{
		{2, ggpk.EncodingUTF16},
		{3, ggpk.EncodingUTF16},
		{4, ggpk.EncodingUTF32},
		{99, ggpk.EncodingUTF16},
	}

	for _, tt := range tests {
		r := parser.NewReader(testutil.NewMemStream(buildHeader(28, "GGPK", tt.version, 28, 0)), discardLogger())
		_, err := r.ReadHeader()
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.DetectEncoding(), "version %d", tt.version)
	}
}

// reopen parses a copy of mem's current bytes as a fresh container.
func reopen(t *testing.T, mem *testutil.MemStream) (*ggpk.Container, *testutil.MemStream) {
	t.Helper()

	copied := testutil.NewMemStream(mem.Bytes())
	c, err := parser.Open(copied, discardLogger())
	require.NoError(t, err)
	return c, copied
}

// snapshot maps every path to the node's offset and hash.
func snapshot(t *testing.T, c *ggpk.Container) map[string][2]any {
	t.Helper()

	out := make(map[string][2]any)
	require.NoError(t, c.Walk(func(n ggpk.Node) error {
		out[n.Path()] = [2]any{n.Offset(), n.Hash()}
		return nil
	}))
	return out
}

func TestOpenBuiltContainer(t *testing.T) {
	fsys := fstest.MapFS{
		"a.txt":               {Data: []byte("hello")},
		"Data/Mods.dat":       {Data: bytes.Repeat([]byte{1, 2, 3}, 100)},
		"Data/Lang/日本語.txt":   {Data: []byte("こんにちは")},
		"Audio/Music/empty.o": {Data: nil},
	}

	for _, v := range []ggpk.FormatVersion{ggpk.VersionPC, ggpk.VersionMac} {
		t.Run(v.NameEncoding().String(), func(t *testing.T) {
			mem := testutil.NewMemStream(nil)
			built, err := ggpk.Build(mem, v, fsys, ggpk.WithLogger(discardLogger()))
			require.NoError(t, err)

			c, _ := reopen(t, mem)
			assert.Equal(t, v, c.Version())
			assert.Equal(t, snapshot(t, built), snapshot(t, c))

			for name, file := range fsys {
				f, err := c.File(name)
				require.NoError(t, err, name)
				content, err := f.ReadAll()
				require.NoError(t, err, name)
				assert.Equal(t, string(file.Data), string(content), name)
			}
			require.NoError(t, c.Verify(t.Context()))
		})
	}
}

func TestOpenLogsRecordsAtTrace(t *testing.T) {
	mem := testutil.NewMemStream(nil)
	c, err := ggpk.Create(mem, ggpk.VersionPC, ggpk.WithLogger(discardLogger()))
	require.NoError(t, err)
	f, err := c.Root().AddFile("a.txt", []byte("hi"))
	require.NoError(t, err)

	for level, want := range map[string]bool{"trace": true, "debug": false} {
		var buf bytes.Buffer
		logger, err := logging.New(&buf, level, "")
		require.NoError(t, err)

		_, err = parser.Open(testutil.NewMemStream(mem.Bytes()), logger)
		require.NoError(t, err)

		assert.Equal(t, want, strings.Contains(buf.String(), "read record"), level)
		if want {
			// console keys are colored, so match values only
			assert.Contains(t, buf.String(), "FILE")
			assert.Contains(t, buf.String(), fmt.Sprint(f.Offset()))
		}
	}
}

func TestOpenAfterRelocation(t *testing.T) {
	mem := testutil.NewMemStream(nil)
	c, err := ggpk.Create(mem, ggpk.VersionPC, ggpk.WithLogger(discardLogger()))
	require.NoError(t, err)

	dir, err := c.Root().AddDirectory("dir")
	require.NoError(t, err)
	a, err := dir.AddFile("a.txt", []byte("hi"))
	require.NoError(t, err)
	_, err = c.Root().AddFile("b.txt", []byte("bee"))
	require.NoError(t, err)
	require.NoError(t, a.Write([]byte("hello world")))
	require.NoError(t, a.Write([]byte("HELLO WORLD")))

	reopened, copied := reopen(t, mem)
	assert.Equal(t, c.FreeList().Records(), reopened.FreeList().Records())
	assert.Equal(t, c.Root().Offset(), reopened.Root().Offset())

	f, err := reopened.File("dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, a.Offset(), f.Offset())
	content, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", string(content))

	// Writes through the reopened container reuse the chain it read.
	g, err := reopened.File("b.txt")
	require.NoError(t, err)
	freeBefore := reopened.FreeList().Size()
	require.NoError(t, g.Write([]byte("bees")))
	assert.NotEqual(t, freeBefore, reopened.FreeList().Size())

	again, _ := reopen(t, copied)
	h, err := again.File("b.txt")
	require.NoError(t, err)
	content, err = h.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "bees", string(content))
	require.NoError(t, again.Verify(t.Context()))
}

func TestOpenCorruption(t *testing.T) {
	type fixture struct {
		mem  *testutil.MemStream
		c    *ggpk.Container
		file *ggpk.FileRecord
	}
	setup := func(t *testing.T) fixture {
		mem := testutil.NewMemStream(nil)
		c, err := ggpk.Create(mem, ggpk.VersionPC, ggpk.WithLogger(discardLogger()))
		require.NoError(t, err)
		f, err := c.Root().AddFile("a.txt", []byte("hi"))
		require.NoError(t, err)
		// Moving a.txt leaves its first slot on the free chain.
		require.NoError(t, f.Write([]byte("hello world")))
		require.NotEmpty(t, c.FreeList().Records())
		return fixture{mem, c, f}
	}
	putUint32 := func(b []byte, off int64, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
	putInt64 := func(b []byte, off int64, v int64) { binary.LittleEndian.PutUint64(b[off:], uint64(v)) }

	tests := []struct {
		name   string
		patch  func(fx fixture, b []byte)
		errMsg string
	}{
		{
			name: "directory entry loops back to root",
			patch: func(fx fixture, b []byte) {
				// root has an empty name: entries start after the header and a 2-byte terminator
				putInt64(b, fx.c.Root().Offset()+ggpk.DirectoryHeaderSize+2+4, fx.c.Root().Offset())
			},
			errMsg: "referenced twice",
		},
		{
			name: "unknown record tag",
			patch: func(fx fixture, b []byte) {
				copy(b[fx.file.Offset()+4:], "XXXX")
			},
			errMsg: "unknown record tag",
		},
		{
			name: "root is a file",
			patch: func(fx fixture, b []byte) {
				putInt64(b, 12, fx.file.Offset())
			},
			errMsg: "is not a directory",
		},
		{
			name: "file length too short",
			patch: func(fx fixture, b []byte) {
				putUint32(b, fx.file.Offset(), 20)
			},
			errMsg: "failed to read file record",
		},
		{
			name: "free chain loops",
			patch: func(fx fixture, b []byte) {
				recs := fx.c.FreeList().Records()
				last := recs[len(recs)-1]
				putInt64(b, last.Offset+ggpk.RecordHeaderSize, recs[0].Offset)
			},
			errMsg: "referenced twice",
		},
		{
			name: "free chain reaches another record",
			patch: func(fx fixture, b []byte) {
				first := fx.c.FreeList().Records()[0]
				copy(b[first.Offset+4:], "PDIR")
			},
			errMsg: "free chain reaches",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := setup(t)
			raw := append([]byte(nil), fx.mem.Bytes()...)
			tt.patch(fx, raw)

			_, err := parser.Open(testutil.NewMemStream(raw), discardLogger())
			require.Error(t, err)
			assert.ErrorIs(t, err, ggpk.ErrFormatCorruption)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
