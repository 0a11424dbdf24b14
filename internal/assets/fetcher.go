package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/linkrewrite"
	"github.com/user/sitemirror/pkg/metrics"
	"github.com/user/sitemirror/pkg/utils"
)

// CSSURLPattern captures url('...'), url("...") and url(...).
var CSSURLPattern = regexp.MustCompile(`url\(\s*['"]?\s*([^'")]+?)\s*['"]?\s*\)`)

const defaultDownloadTimeout = 10 * time.Second

// Fetcher downloads remote resources into the output tree, at most once per URL.
type Fetcher struct {
	root      string
	client    *http.Client
	userAgent string
	cache     *Cache
	logger    *zap.Logger
	failures  int
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client, which carries the download timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client = &http.Client{Timeout: d} }
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// NewFetcher creates a Fetcher writing below root.
func NewFetcher(root string, cache *Cache, logger *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		root:   root,
		client: &http.Client{Timeout: defaultDownloadTimeout},
		cache:  cache,
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Cache() *Cache { return f.cache }

// Failures is the number of URLs that could not be downloaded this run.
func (f *Fetcher) Failures() int { return f.failures }

// Fetch returns the output-root path of the local copy of rawURL. data: URIs
// and references that are not http(s) come back unchanged, as does the
// original URL when the download fails.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, kind entity.AssetKind) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return rawURL
	}
	abs := raw
	if strings.HasPrefix(abs, "//") {
		abs = "https:" + abs
	}
	u, err := url.Parse(abs)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return rawURL
	}
	u.Fragment = ""
	key := u.String()

	f.cache.Note(kind, key)
	if p, ok := f.cache.Lookup(key); ok {
		metrics.AssetsTotal.WithLabelValues(string(kind), "cached").Inc()
		if p == key {
			return rawURL
		}
		return p
	}

	local := LocalPath(u, kind)
	full := filepath.Join(f.root, filepath.FromSlash(local))
	if _, err := os.Stat(full); err == nil {
		f.cache.Store(key, local)
		metrics.AssetsTotal.WithLabelValues(string(kind), "on_disk").Inc()
		return local
	}

	body, err := f.download(ctx, key)
	if err == nil {
		// Stored before stylesheet processing so @import cycles terminate.
		f.cache.Store(key, local)
		if kind == entity.AssetStyle {
			body = []byte(f.localizeStylesheet(ctx, string(body), u, local))
		}
		err = writeFile(full, body)
	}
	if err != nil {
		f.cache.Store(key, key)
		f.failures++
		metrics.AssetsTotal.WithLabelValues(string(kind), "failed").Inc()
		f.logger.Warn("Asset download failed", zap.String("url", key), zap.Error(err))
		return rawURL
	}

	metrics.AssetsTotal.WithLabelValues(string(kind), "downloaded").Inc()
	f.logger.Debug("Asset saved", zap.String("url", key), zap.String("path", local))
	return local
}

func (f *Fetcher) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: HTTP status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return body, nil
}

// localizeStylesheet fetches url() references of a downloaded stylesheet and
// rewrites them relative to the stylesheet's own location.
func (f *Fetcher) localizeStylesheet(ctx context.Context, css string, sheetURL *url.URL, sheetPath string) string {
	return CSSURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		m := CSSURLPattern.FindStringSubmatch(match)
		if len(m) < 2 || strings.HasPrefix(m[1], "data:") || strings.HasPrefix(m[1], "#") {
			return match
		}
		abs, err := utils.ToAbsoluteURL(sheetURL, m[1])
		if err != nil {
			return match
		}
		kind := KindFromURL(abs)
		if kind == entity.AssetOther {
			kind = entity.AssetImage
		}
		local := f.Fetch(ctx, abs, kind)
		if local == abs {
			return fmt.Sprintf("url('%s')", abs)
		}
		return fmt.Sprintf("url('%s')", linkrewrite.RelativeTo(sheetPath, local))
	})
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
