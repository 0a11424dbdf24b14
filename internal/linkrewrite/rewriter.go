// Package linkrewrite maps site-origin URLs onto paths inside the output tree.
package linkrewrite

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const indexDocument = "index.html"

// Rewriter knows the set of hosts that count as "this site".
type Rewriter struct {
	siteHosts    map[string]struct{}
	previewHosts map[string]struct{}
}

// New builds a Rewriter for siteDomain (matched with and without www.) and
// any builder preview domains.
func New(siteDomain string, previewDomains []string) *Rewriter {
	r := &Rewriter{
		siteHosts:    make(map[string]struct{}),
		previewHosts: make(map[string]struct{}),
	}
	if d := strings.TrimPrefix(strings.ToLower(siteDomain), "www."); d != "" {
		r.siteHosts[d] = struct{}{}
		r.siteHosts["www."+d] = struct{}{}
	}
	for _, p := range previewDomains {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			r.previewHosts[p] = struct{}{}
		}
	}
	return r
}

// IsSiteHost reports whether host is the site domain or its www. variant.
func (r *Rewriter) IsSiteHost(host string) bool {
	_, ok := r.siteHosts[strings.ToLower(host)]
	return ok
}

// IsPreviewHost reports whether host is a configured builder preview domain.
func (r *Rewriter) IsPreviewHost(host string) bool {
	_, ok := r.previewHosts[strings.ToLower(host)]
	return ok
}

// IsOriginURL reports whether raw is an absolute or protocol-relative URL on
// one of the origin hosts.
func (r *Rewriter) IsOriginURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	h := u.Hostname()
	return r.IsSiteHost(h) || r.IsPreviewHost(h)
}

// Rewrite returns the output-root path for a site-internal href, e.g.
// "https://www.example.com/about/" -> "about.html". The second result is false
// for external hosts, anchors, non-http schemes and already-relative paths.
func (r *Rewriter) Rewrite(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	switch {
	case u.Scheme != "":
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false
		}
		if !r.IsOriginURL(href) {
			return "", false
		}
	case strings.HasPrefix(href, "//"):
		if !r.IsOriginURL(href) {
			return "", false
		}
	case strings.HasPrefix(href, "/"):
	default:
		return "", false
	}

	local := pathToLocal(u.Path)
	if frag := u.EscapedFragment(); frag != "" {
		local += "#" + frag
	}
	return local, true
}

// LocalPath returns where the page at rawURL is stored in the output tree.
func LocalPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return indexDocument
	}
	return pathToLocal(u.Path)
}

// RelativeTo expresses target (output-root path, optional #fragment) relative
// to the directory of docPath.
func RelativeTo(docPath, target string) string {
	frag := ""
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target, frag = target[:i], target[i:]
	}
	dir := path.Dir(filepath.ToSlash(docPath))
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(target))
	if err != nil {
		return target + frag
	}
	return filepath.ToSlash(rel) + frag
}

func pathToLocal(p string) string {
	trailing := strings.HasSuffix(p, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return indexDocument
	}
	if trailing {
		return p + ".html"
	}
	if path.Ext(path.Base(p)) == "" {
		return p + ".html"
	}
	return p
}
