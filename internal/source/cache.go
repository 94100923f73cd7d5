package source

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/pkg/fileutil"
)

const cacheIndexSize = 128

// cacheMeta sits next to each cached tree.
type cacheMeta struct {
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
}

// Cache is an append-only content-addressed store of fetched sources,
// keyed by the canonical URL. An in-process LRU keeps hot entries from
// being re-statted.
type Cache struct {
	root   string
	index  *lru.Cache[string, string]
	logger *slog.Logger
}

// NewCache opens (or lazily creates) a cache rooted at root.
func NewCache(root string, logger *slog.Logger) *Cache {
	index, _ := lru.New[string, string](cacheIndexSize)
	return &Cache{root: root, index: index, logger: logger}
}

func (c *Cache) entryDir(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.root, hex.EncodeToString(sum[:]))
}

// Lookup returns the cached tree for url, if present.
func (c *Cache) Lookup(url string) (string, bool) {
	if dir, ok := c.index.Get(url); ok {
		return filepath.Join(dir, "tree"), true
	}
	dir := c.entryDir(url)
	if _, err := os.Stat(filepath.Join(dir, "meta.json")); err != nil {
		return "", false
	}
	tree := filepath.Join(dir, "tree")
	if info, err := os.Stat(tree); err != nil || !info.IsDir() {
		return "", false
	}
	c.index.Add(url, dir)
	return tree, true
}

// Store copies srcDir into the cache slot for url and returns the cached
// tree path. An existing entry is reused untouched.
func (c *Cache) Store(url, srcDir string) (string, error) {
	dir := c.entryDir(url)
	tree := filepath.Join(dir, "tree")
	if _, err := os.Stat(filepath.Join(dir, "meta.json")); err == nil {
		c.index.Add(url, dir)
		return tree, nil
	}

	// Build under a temp name, then rename: readers never see a partial
	// entry.
	staging, err := os.MkdirTemp(filepath.Dir(dir), ".pacc-cache-*")
	if err != nil {
		if mkErr := os.MkdirAll(filepath.Dir(dir), 0o755); mkErr != nil {
			return "", paccerr.Filesystem("io", "creating cache directory").WithCause(mkErr)
		}
		staging, err = os.MkdirTemp(filepath.Dir(dir), ".pacc-cache-*")
		if err != nil {
			return "", paccerr.Filesystem("io", "creating cache staging directory").WithCause(err)
		}
	}
	defer os.RemoveAll(staging)

	size, err := copyTree(srcDir, filepath.Join(staging, "tree"))
	if err != nil {
		return "", err
	}
	meta := cacheMeta{URL: url, SizeBytes: size, StoredAt: time.Now().UTC()}
	if err := fileutil.AtomicWriteJSON(filepath.Join(staging, "meta.json"), meta); err != nil {
		return "", err
	}
	if err := os.Rename(staging, dir); err != nil {
		// Lost the race to another process; their entry is as good.
		if _, statErr := os.Stat(tree); statErr == nil {
			c.index.Add(url, dir)
			return tree, nil
		}
		return "", paccerr.Filesystem("io", "promoting cache entry").WithCause(err)
	}
	c.index.Add(url, dir)
	return tree, nil
}

// copyTree copies a directory recursively, skipping symlinks, and
// returns the total bytes copied.
func copyTree(src, dst string) (int64, error) {
	var total int64
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&os.ModeSymlink != 0:
			return nil
		default:
			n, err := copyFileContents(path, target)
			total += n
			return err
		}
	})
	if err != nil {
		return 0, paccerr.Filesystem("io", "copying %s", src).WithCause(err)
	}
	return total, nil
}

func copyFileContents(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
