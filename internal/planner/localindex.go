package planner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/distribution"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// LocalIndex answers whether name@version already has a wheel sitting in
// the local cache, letting the planner route a package to Local instead of
// Remote without a network round trip. Backed by a directory scan since
// this cache keys wheels by their original filename rather than a
// registry-shaped index.
type LocalIndex interface {
	Lookup(name, version string) (path string, ok bool)
}

// cacheLocalIndex implements LocalIndex over a cache.Root's wheels bucket.
type cacheLocalIndex struct {
	dir string
}

// NewCacheLocalIndex builds a LocalIndex backed by root's wheels bucket.
func NewCacheLocalIndex(root *cache.Root) LocalIndex {
	return &cacheLocalIndex{dir: root.Bucket(cache.BucketWheels).Dir()}
}

func (c *cacheLocalIndex) Lookup(name, version string) (string, bool) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", false
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".whl") {
			continue
		}

		wheelName, wheelVersion, _, _, err := distribution.ParseWheelFilename(e.Name())
		if err != nil {
			continue
		}

		if resolver.NormalizeName(wheelName) == name && wheelVersion == version {
			return filepath.Join(c.dir, e.Name()), true
		}
	}

	return "", false
}
