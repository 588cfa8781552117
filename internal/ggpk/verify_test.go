package ggpk_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossyrian/mintypack/internal/ggpk"
)

func TestVerify(t *testing.T) {
	c, mem := newContainer(t, ggpk.VersionPC)
	root := c.Root()

	for _, name := range []string{"a", "b", "c", "d"} {
		_, err := root.AddFile(name, []byte("content of "+name))
		require.NoError(t, err)
	}
	require.NoError(t, c.Verify(t.Context()))

	f, err := c.File("c")
	require.NoError(t, err)
	mem.Bytes()[f.ContentOffset()] ^= 0xff

	err = c.Verify(t.Context())
	assert.ErrorIs(t, err, ggpk.ErrHashMismatch)
	assert.ErrorContains(t, err, `c: stored`)
}

func TestVerifyCanceled(t *testing.T) {
	c, _ := newContainer(t, ggpk.VersionPC)
	_, err := c.Root().AddFile("a", []byte("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, c.Verify(ctx), context.Canceled)
}
