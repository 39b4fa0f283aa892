package reqcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key addresses one cached response. Page < 0 means the request is unpaged.
type Key struct {
	Endpoint string
	Hash     string
	Page     int
}

// NewKey fingerprints endpoint and params. url.Values.Encode sorts by key, so
// the order parameters were added in never changes the hash.
func NewKey(endpoint string, params url.Values) Key {
	sum := sha256.Sum256([]byte(endpoint + "\n" + params.Encode()))
	return Key{Endpoint: endpoint, Hash: hex.EncodeToString(sum[:]), Page: -1}
}

// WithPage returns a copy of k for the given page ordinal.
func (k Key) WithPage(n int) Key {
	k.Page = n
	return k
}

func (k Key) String() string {
	if k.Page < 0 {
		return dirName(k.Endpoint) + "/" + k.Hash
	}
	return fmt.Sprintf("%s/%s-%d", dirName(k.Endpoint), k.Hash, k.Page)
}

// Path returns the file the body for k lives in under root.
func (k Key) Path(root string) string {
	name := k.Hash
	if k.Page >= 0 {
		name = fmt.Sprintf("%s-%d", k.Hash, k.Page)
	}
	return filepath.Join(root, dirName(k.Endpoint), name+".json")
}

func dirName(endpoint string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(endpoint) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "root"
	}
	return out
}

// Cache is an on-disk response store with a small in-memory front. Entries
// are never evicted from disk.
type Cache struct {
	root string
	mem  *lru.Cache[Key, []byte]
}

const defaultMemEntries = 256

// Open prepares root for writing. It fails when root cannot be created.
func Open(root string) (*Cache, error) {
	if root == "" {
		return nil, errors.New("reqcache: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("reqcache: create root: %w", err)
	}
	mem, err := lru.New[Key, []byte](defaultMemEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{root: root, mem: mem}, nil
}

func (c *Cache) Root() string { return c.root }

// Get returns the stored body for k. ok is false when nothing was stored.
func (c *Cache) Get(k Key) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	if b, ok := c.mem.Get(k); ok {
		return b, true
	}
	b, err := os.ReadFile(k.Path(c.root))
	if err != nil {
		return nil, false
	}
	c.mem.Add(k, b)
	return b, true
}

// Put stores body for k, replacing any earlier body atomically.
func (c *Cache) Put(k Key, body []byte) error {
	if c == nil {
		return nil
	}
	path := k.Path(c.root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reqcache: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("reqcache: temp file: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("reqcache: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("reqcache: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("reqcache: rename: %w", err)
	}
	c.mem.Add(k, append([]byte(nil), body...))
	return nil
}

// Has reports whether a body for k exists on disk.
func (c *Cache) Has(k Key) bool {
	if c == nil {
		return false
	}
	if c.mem.Contains(k) {
		return true
	}
	_, err := os.Stat(k.Path(c.root))
	return err == nil
}
