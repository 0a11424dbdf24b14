// Package transform applies the mirror's mutation rules to one HTML document.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/user/sitemirror/internal/assets"
	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/linkrewrite"
	"github.com/user/sitemirror/pkg/metrics"
	"github.com/user/sitemirror/pkg/utils"
)

// FormMarkerClass marks an injected form block. Its presence makes form
// injection a no-op.
const FormMarkerClass = "mirror-form-container"

// AssetFetcher resolves a remote resource to its output-root path.
type AssetFetcher interface {
	Fetch(ctx context.Context, rawURL string, kind entity.AssetKind) string
}

// FormSpec describes one form block injected into one document.
type FormSpec struct {
	Document   string
	Keyword    string
	Markup     string
	Stylesheet string
}

type Options struct {
	Rewriter *linkrewrite.Rewriter
	// Fetcher is optional; without it remote references are left alone.
	Fetcher         AssetFetcher
	KeepRemoteHosts []string
	Stylesheets     []string
	Scripts         []string
	Forms           []FormSpec
	SuccessDocument string
	SuccessMarkup   string
}

// DocContext identifies the document being transformed.
type DocContext struct {
	// DocPath is the document's slash-separated path below the output root.
	DocPath string
	// PageURL is the live URL the markup was rendered from. Empty when
	// patching files already on disk.
	PageURL string
	// BaseURL resolves root-relative asset references when PageURL is empty.
	BaseURL string
}

type rule struct {
	name  string
	apply func(ctx context.Context, doc *goquery.Document, dc *DocContext) bool
}

// Transformer runs a fixed sequence of rules over a private parsed copy of
// each document.
type Transformer struct {
	opts Options
	keep map[string]struct{}
	// helpers are the output-root paths of injected stylesheets and scripts.
	helpers []string
	logger  *zap.Logger
	rules   []rule
}

func New(opts Options, logger *zap.Logger) *Transformer {
	t := &Transformer{
		opts:   opts,
		keep:   make(map[string]struct{}, len(opts.KeepRemoteHosts)),
		logger: logger,
	}
	for _, h := range opts.KeepRemoteHosts {
		t.keep[strings.ToLower(h)] = struct{}{}
	}
	t.helpers = append(t.helpers, opts.Stylesheets...)
	t.helpers = append(t.helpers, opts.Scripts...)
	for _, f := range opts.Forms {
		if f.Stylesheet != "" {
			t.helpers = append(t.helpers, f.Stylesheet)
		}
	}
	t.rules = []rule{
		{name: "strip-runtime", apply: t.stripRuntime},
		{name: "strip-branding", apply: t.stripBranding},
		{name: "localize-assets", apply: t.localizeAssets},
		{name: "rewrite-links", apply: t.rewriteLinks},
		{name: "inject-helpers", apply: t.injectHelpers},
		{name: "inject-forms", apply: t.injectForms},
		{name: "success-page", apply: t.successPage},
	}
	return t
}

// Transform returns the rewritten markup and whether any rule changed it.
// When nothing changed the input is returned as is.
func (t *Transformer) Transform(ctx context.Context, markup string, dc DocContext) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup, false, fmt.Errorf("parse %s: %w", dc.DocPath, err)
	}

	changed := false
	for _, r := range t.rules {
		if err := ctx.Err(); err != nil {
			return markup, false, err
		}
		if r.apply(ctx, doc, &dc) {
			t.logger.Debug("Rule applied", zap.String("rule", r.name), zap.String("doc", dc.DocPath))
			changed = true
		}
	}
	if !changed {
		return markup, false, nil
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Get(0)); err != nil {
		return markup, false, fmt.Errorf("render %s: %w", dc.DocPath, err)
	}
	metrics.DocumentsChanged.Inc()
	return buf.String(), true, nil
}

// resolveAsset returns the absolute form of an asset reference that should be
// fetched, or false for references that are already local or not fetchable.
func (t *Transformer) resolveAsset(dc *DocContext, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
		return "", false
	}
	if strings.HasPrefix(ref, "//") {
		return ref, !t.keepRemote(ref)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false
		}
		return ref, !t.keepRemote(ref)
	}

	if !strings.HasPrefix(ref, "/") && t.isLocalCopy(dc, u.Path) {
		return "", false
	}

	base := dc.PageURL
	if base == "" {
		if dc.BaseURL == "" || !strings.HasPrefix(ref, "/") {
			return "", false
		}
		base = dc.BaseURL
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	abs, err := utils.ToAbsoluteURL(b, ref)
	if err != nil {
		return "", false
	}
	return abs, !t.keepRemote(abs)
}

// isLocalCopy reports whether a document-relative path points into the
// assets tree or at an injected helper, i.e. at something this tool wrote.
func (t *Transformer) isLocalCopy(dc *DocContext, p string) bool {
	if p == "" {
		return false
	}
	rooted := path.Join(path.Dir(dc.DocPath), p)
	if strings.HasPrefix(rooted, "../") {
		return false
	}
	if assets.IsAssetsPath(rooted) {
		return true
	}
	for _, h := range t.helpers {
		if rooted == h {
			return true
		}
	}
	return false
}

func (t *Transformer) keepRemote(ref string) bool {
	if len(t.keep) == 0 {
		return false
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for h := range t.keep {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// localizeRef fetches ref and returns the value the attribute should carry.
func (t *Transformer) localizeRef(ctx context.Context, dc *DocContext, ref string, kind entity.AssetKind) (string, bool) {
	if t.opts.Fetcher == nil {
		return ref, false
	}
	abs, ok := t.resolveAsset(dc, ref)
	if !ok {
		return ref, false
	}
	local := t.opts.Fetcher.Fetch(ctx, abs, kind)
	if local == abs {
		return abs, true
	}
	return linkrewrite.RelativeTo(dc.DocPath, local), true
}

// absoluteHref resolves document-relative navigation links against the live
// page so the rewriter can recognize them.
func absoluteHref(dc *DocContext, href string) string {
	if dc.PageURL == "" {
		return href
	}
	h := strings.TrimSpace(href)
	if h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "/") {
		return href
	}
	u, err := url.Parse(h)
	if err != nil || u.Scheme != "" {
		return href
	}
	base, err := url.Parse(dc.PageURL)
	if err != nil {
		return href
	}
	abs, err := utils.ToAbsoluteURL(base, h)
	if err != nil {
		return href
	}
	return abs
}

func removeAll(sel *goquery.Selection) int {
	n := sel.Length()
	sel.Remove()
	return n
}

func hasAttrValue(sel *goquery.Selection, attr, value string) bool {
	found := false
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) == value {
			found = true
			return false
		}
		return true
	})
	return found
}

// setRawText replaces the children of raw-text elements such as <style>
// without entity escaping.
func setRawText(sel *goquery.Selection, text string) {
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
