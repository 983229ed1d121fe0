package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrConcurrentModification is returned when another writer committed the
// same version first.
var ErrConcurrentModification = errors.New("blobstore: concurrent modification detected")

// Catalog records which archive is the current backup of a volume.
// Versions start at 1 and increase by one per commit.
type Catalog interface {
	// Commit records name as version of volume. It fails with
	// ErrConcurrentModification if the version already exists.
	Commit(ctx context.Context, volume string, version uint64, name string) error
	// Latest returns the highest committed version of volume, or
	// ErrNotFound if there is none.
	Latest(ctx context.Context, volume string) (uint64, string, error)
}

// MemoryCatalog is an in-memory Catalog.
type MemoryCatalog struct {
	mu       sync.Mutex
	versions map[string]map[uint64]string
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{versions: make(map[string]map[uint64]string)}
}

// Commit implements Catalog.
func (c *MemoryCatalog) Commit(ctx context.Context, volume string, version uint64, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if version == 0 {
		return errors.New("blobstore: version must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	vs, ok := c.versions[volume]
	if !ok {
		vs = make(map[uint64]string)
		c.versions[volume] = vs
	}
	if _, exists := vs[version]; exists {
		return ErrConcurrentModification
	}
	vs[version] = name
	return nil
}

// Latest implements Catalog.
func (c *MemoryCatalog) Latest(ctx context.Context, volume string) (uint64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		latest uint64
		name   string
	)
	for v, n := range c.versions[volume] {
		if v > latest {
			latest, name = v, n
		}
	}
	if latest == 0 {
		return 0, "", fmt.Errorf("%w: no backup of %q", ErrNotFound, volume)
	}
	return latest, name, nil
}
