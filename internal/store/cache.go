package store

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache provides in-memory caching for blobs.
type Cache interface {
	Get(key string) ([]byte, bool)
	Add(key string, value []byte) (evicted bool)
	Contains(key string) bool
	Remove(key string) (present bool)
	Purge()
}

var _ Cache = (*lru.Cache[string, []byte])(nil)

// NewLRUCache creates a cache holding at most size blobs.
func NewLRUCache(size int) (Cache, error) {
	if size < 1 {
		size = 1
	}
	return lru.New[string, []byte](size)
}
