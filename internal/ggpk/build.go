package ggpk

import (
	"fmt"
	"io"
	"io/fs"
	"math"
	"path"

	"github.com/opencontainers/go-digest"
)

// Build writes a new container holding every directory and regular file of fsys.
//
// The layout is sequential: header, then every record in depth-first order. All headers
// and names are written first, then a second pass fills in file contents. Files are hashed
// while the tree is collected and again while their content is copied; a file that changed
// in between fails the build with ErrHashMismatch.
func Build(rws io.ReadWriteSeeker, version FormatVersion, fsys fs.FS, opts ...Option) (*Container, error) {
	c := NewContainer(NewStream(rws), &HeaderRecord{Version: version, RootOffset: HeaderRecordSize}, opts...)

	root, err := newDirectoryRecord(c, "", true)
	if err != nil {
		return nil, err
	}
	if err := c.collect(root, fsys, "."); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size := layout(root, HeaderRecordSize)
	c.logger.Info("laid out container",
		"version", version,
		"size", size,
	)

	if err := c.header.serialize(c.stream); err != nil {
		return nil, err
	}
	if err := c.writeRecords(root); err != nil {
		return nil, err
	}
	if err := c.fillContents(root, fsys); err != nil {
		return nil, err
	}
	if err := c.flush(); err != nil {
		return nil, err
	}

	c.root = root
	return c, nil
}

// collect builds the in-memory tree below d from the directory dir of fsys.
func (c *Container) collect(d *DirectoryRecord, fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if d.indexOf(e.Name()) >= 0 {
			return fmt.Errorf("%s: %w", p, ErrExist)
		}

		switch {
		case e.IsDir():
			sub, err := NewDirectoryRecord(c, e.Name())
			if err != nil {
				return err
			}
			sub.parent = d
			if err := c.collect(sub, fsys, p); err != nil {
				return err
			}
			d.insert(sub)

		case e.Type().IsRegular():
			f, err := c.collectFile(fsys, p, e.Name())
			if err != nil {
				return err
			}
			f.parent = d
			d.insert(f)

		default:
			c.logger.Warn("skipping entry that is not a regular file", "path", p, "mode", e.Type())
		}
	}

	d.length, err = directoryRecordLength(c.Encoding(), len(d.encodedName), len(d.entries))
	if err != nil {
		return err
	}
	d.hash = d.childrenHash()
	return nil
}

func (c *Container) collectFile(fsys fs.FS, p, name string) (*FileRecord, error) {
	f, err := NewFileRecord(c, name)
	if err != nil {
		return nil, err
	}

	src, err := fsys.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer src.Close()

	hash, n, err := ReaderHash(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("%s is %d bytes: %w", p, n, ErrSizeOverflow)
	}

	f.hash = hash
	f.dataLength = int32(n)
	f.length, err = fileRecordLength(c.Encoding(), len(f.encodedName), f.dataLength)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("collected file", "path", p, "size", n, "digest", hash)
	return f, nil
}

// layout assigns offsets depth-first starting at next and fills in directory entries.
// It returns the offset just past the last record.
func layout(n Node, next int64) int64 {
	switch r := n.(type) {
	case *FileRecord:
		r.offset = next
		r.dataOffset = next + FileHeaderSize + int64(len(r.encodedName)+r.c.Encoding().CharWidth())
		return next + int64(r.length)
	case *DirectoryRecord:
		r.offset = next
		next += int64(r.length)
		for i, child := range r.children {
			next = layout(child, next)
			r.entries[i].Offset = child.Offset()
		}
		return next
	}
	return next
}

// writeRecords serializes every record in layout order, skipping over file contents.
func (c *Container) writeRecords(root *DirectoryRecord) error {
	if err := seekTo(c.stream, root.offset); err != nil {
		return err
	}
	return walk(root, func(n Node) error {
		planned := n.Offset()
		switch r := n.(type) {
		case *FileRecord:
			if err := r.Serialize(); err != nil {
				return err
			}
			if _, err := c.stream.Seek(int64(r.dataLength), io.SeekCurrent); err != nil {
				return ioFail("skip content of "+r.Path(), err)
			}
		case *DirectoryRecord:
			if err := r.Serialize(); err != nil {
				return err
			}
		}
		if n.Offset() != planned {
			panic(fmt.Sprintf("ggpk: %q written at %d, laid out at %d", n.Path(), n.Offset(), planned))
		}
		return nil
	})
}

// fillContents copies every file's content into place, re-hashing it on the way.
func (c *Container) fillContents(root *DirectoryRecord, fsys fs.FS) error {
	return walk(root, func(n Node) error {
		f, ok := n.(*FileRecord)
		if !ok {
			return nil
		}

		src, err := fsys.Open(f.Path())
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", f.Path(), err)
		}
		defer src.Close()

		if err := seekTo(c.stream, f.dataOffset); err != nil {
			return err
		}
		dg := digest.SHA256.Digester()
		copied, err := io.Copy(c.stream, io.TeeReader(io.LimitReader(src, int64(f.dataLength)), dg.Hash()))
		if err != nil {
			return ioFail("copy content of "+f.Path(), err)
		}
		var extra [1]byte
		grown, _ := src.Read(extra[:])
		if grown > 0 || copied != int64(f.dataLength) || hashFromDigest(dg.Digest()) != f.hash {
			return fmt.Errorf("%s changed while packing: %w", f.Path(), ErrHashMismatch)
		}
		return nil
	})
}
