package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sourcegraph/conc/pool"

	"github.com/aweris/stuffed"
)

type componentFile struct {
	Path    string
	Content []byte
	Digest  string
}

// readComponents reads and hashes paths concurrently. Results keep the
// order of paths; the first failure cancels the rest.
func readComponents(ctx context.Context, paths []string, jobs int) ([]componentFile, error) {
	files := make([]componentFile, len(paths))
	p := pool.New().WithMaxGoroutines(jobs).WithContext(ctx).WithCancelOnError()

	for i, path := range paths {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("%w: %w", stuffed.ErrIO, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%w: %s is a directory", stuffed.ErrIO, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%w: %w", stuffed.ErrIO, err)
			}
			files[i] = componentFile{Path: path, Content: data, Digest: stuffed.Sum(data)}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
