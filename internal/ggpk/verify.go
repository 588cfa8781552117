package ggpk

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Verify checks every file's content against its stored hash.
// Reads are serialized on the container lock; hashing runs in parallel.
func (c *Container) Verify(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	var files int
	walkErr := c.Walk(func(n Node) error {
		f, ok := n.(*FileRecord)
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		want := f.Hash()
		content, err := f.ReadAll()
		if err != nil {
			return err
		}
		files++

		g.Go(func() error {
			if got := ContentHash(content); got != want {
				return fmt.Errorf("%s: stored %s, content is %s: %w", f.Path(), want, got, ErrHashMismatch)
			}
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if walkErr != nil {
		return walkErr
	}

	c.logger.Info("verified container", "files", files)
	return nil
}
