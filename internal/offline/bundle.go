package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/proktora/proktora-backend/internal/model"
)

// ErrNoBundle is returned by Get before any bundle has been cached.
var ErrNoBundle = errors.New("offline: no cached bundle")

// BundleCache stores the last good offline bundle on disk so the exam can
// render with zero network after the initial fetch. Put is atomic
// (temp+rename); Get keeps an in-memory copy after the first read.
type BundleCache struct {
	path string

	mu     sync.Mutex
	cached *model.OfflineBundle
}

// NewBundleCache creates a cache writing to path. The parent directory
// must exist.
func NewBundleCache(path string) *BundleCache {
	return &BundleCache{path: path}
}

// Put replaces the cached bundle.
func (c *BundleCache) Put(b *model.OfflineBundle) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.cached = b
	c.mu.Unlock()
	return nil
}

// Get returns the cached bundle, reading from disk on first use.
func (c *BundleCache) Get() (*model.OfflineBundle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil {
		return c.cached, nil
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoBundle
		}
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}

	var b model.OfflineBundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.path, err)
	}
	c.cached = &b
	return &b, nil
}
