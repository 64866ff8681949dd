package store

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/aweris/stuffed/internal/compression"
)

// DefaultCacheSize is the number of blobs kept in memory.
const DefaultCacheSize = 16

// LocalStore implements Store using the local filesystem.
//
// Storage layout:
//
//	basePath/
//	  objects/
//	    ab/cd123...  (content-addressed blobs, sha256 hex sharded)
//	  refs/
//	    <query-escaped ref>  (plain text: "sha256:abc123...")
type LocalStore struct {
	basePath   string
	cache      Cache
	compressor *compression.Compressor
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(basePath string, cacheSize int, compressor *compression.Compressor) (*LocalStore, error) {
	for _, dir := range []string{filepath.Join(basePath, "objects"), filepath.Join(basePath, "refs")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	var err error
	if compressor == nil {
		if compressor, err = compression.NewCompressor(compression.LevelDefault, false); err != nil {
			return nil, err
		}
	}

	cache, err := NewLRUCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &LocalStore{
		basePath:   basePath,
		cache:      cache,
		compressor: compressor,
	}, nil
}

// Get retrieves a blob and checks it against its digest. A corrupt object is
// removed so the next Put can restore it.
func (s *LocalStore) Get(ctx context.Context, dgst string) ([]byte, error) {
	d, err := digest.Parse(dgst)
	if err != nil {
		return nil, fmt.Errorf("invalid digest %q: %w", dgst, err)
	}

	if data, ok := s.cache.Get(d.String()); ok {
		return data, nil
	}

	encoded, err := os.ReadFile(s.objectPath(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, d)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}

	data, err := s.compressor.Decompress(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode object %s: %w", d, err)
	}

	if got := digest.FromBytes(data); got != d {
		_ = os.Remove(s.objectPath(d))
		return nil, fmt.Errorf("object %s is corrupt: content digest %s", d, got)
	}

	s.cache.Add(d.String(), data)
	return data, nil
}

// Put stores a blob and returns its digest. Existing blobs are not rewritten.
func (s *LocalStore) Put(ctx context.Context, data []byte) (string, error) {
	d := digest.FromBytes(data)

	if ok, err := s.Has(ctx, d.String()); err != nil {
		return "", err
	} else if ok {
		return d.String(), nil
	}

	path := s.objectPath(d)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, s.compressor.Compress(data), 0644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize object: %w", err)
	}

	s.cache.Add(d.String(), data)
	return d.String(), nil
}

func (s *LocalStore) Has(ctx context.Context, dgst string) (bool, error) {
	d, err := digest.Parse(dgst)
	if err != nil {
		return false, fmt.Errorf("invalid digest %q: %w", dgst, err)
	}
	if s.cache.Contains(d.String()) {
		return true, nil
	}

	_, err = os.Stat(s.objectPath(d))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) GetRef(ref string) (string, error) {
	data, err := os.ReadFile(s.refPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: ref %s", ErrNotFound, ref)
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *LocalStore) PutRef(ref, dgst string) error {
	if _, err := digest.Parse(dgst); err != nil {
		return fmt.Errorf("invalid digest %q: %w", dgst, err)
	}
	return os.WriteFile(s.refPath(ref), []byte(dgst), 0644)
}

// Refs iterates recorded references in directory order. Unreadable entries are skipped.
func (s *LocalStore) Refs() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		entries, err := os.ReadDir(filepath.Join(s.basePath, "refs"))
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ref, err := url.QueryUnescape(e.Name())
			if err != nil {
				continue
			}
			d, err := s.GetRef(ref)
			if err != nil {
				continue
			}
			if !yield(ref, d) {
				return
			}
		}
	}
}

func (s *LocalStore) Close() error {
	s.cache.Purge()
	return s.compressor.Close()
}

// objectPath returns the filesystem path for a digest.
// Git-style sharding: objects/ab/cd123...
func (s *LocalStore) objectPath(d digest.Digest) string {
	hex := d.Encoded()
	if len(hex) < 2 {
		return filepath.Join(s.basePath, "objects", hex)
	}
	return filepath.Join(s.basePath, "objects", hex[:2], hex[2:])
}

func (s *LocalStore) refPath(ref string) string {
	return filepath.Join(s.basePath, "refs", url.QueryEscape(ref))
}
