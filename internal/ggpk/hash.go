package ggpk

import (
	_ "crypto/sha256" // registers digest.SHA256
	"encoding/hex"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// Hash is the SHA-256 digest stored in file and directory records.
type Hash [HashSize]byte

// Digest renders h in "sha256:<hex>" form.
func (h Hash) Digest() digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, h[:])
}

func (h Hash) String() string {
	return h.Digest().String()
}

// ContentHash returns the SHA-256 of content.
func ContentHash(content []byte) Hash {
	return hashFromDigest(digest.SHA256.FromBytes(content))
}

// ReaderHash returns the SHA-256 of everything read from r and the number of bytes read.
func ReaderHash(r io.Reader) (Hash, int64, error) {
	cr := &countingReader{r: r}
	d, err := digest.SHA256.FromReader(cr)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("failed to hash content: %w", err)
	}
	return hashFromDigest(d), cr.n, nil
}

// hashFromDigest panics when a sha256 digest does not decode to HashSize bytes;
// that can only mean the digest library and the record layout disagree.
func hashFromDigest(d digest.Digest) Hash {
	raw, err := hex.DecodeString(d.Encoded())
	if err != nil || len(raw) != HashSize {
		panic(fmt.Sprintf("ggpk: digest %q is not a %d-byte sha256: %v", d, HashSize, err))
	}
	var h Hash
	copy(h[:], raw)
	return h
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
