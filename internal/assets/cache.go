package assets

import "github.com/user/sitemirror/internal/entity"

// Cache is the per-run asset state: resolved local paths by URL plus every
// (kind, url) reference seen, in first-seen order. It is used from a single
// control flow and is not synchronized.
type Cache struct {
	paths map[string]string
	seen  map[string]struct{}
	refs  []entity.AssetRecord
}

func NewCache() *Cache {
	return &Cache{
		paths: make(map[string]string),
		seen:  make(map[string]struct{}),
	}
}

// Lookup returns the resolved path for url. A failed fetch resolves to url itself.
func (c *Cache) Lookup(url string) (string, bool) {
	p, ok := c.paths[url]
	return p, ok
}

func (c *Cache) Store(url, local string) {
	c.paths[url] = local
}

// Note records a reference for the inventory.
func (c *Cache) Note(kind entity.AssetKind, url string) {
	key := string(kind) + "|" + url
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.refs = append(c.refs, entity.AssetRecord{URL: url, Kind: kind})
}

// Records returns every noted reference with its resolved path, if any.
func (c *Cache) Records() []entity.AssetRecord {
	out := make([]entity.AssetRecord, len(c.refs))
	for i, r := range c.refs {
		r.LocalPath = c.paths[r.URL]
		out[i] = r
	}
	return out
}

func (c *Cache) Len() int {
	return len(c.paths)
}
