package transform

import (
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
)

const smallSnippetLimit = 500

var (
	runtimeHosts     = []string{"framer.com", "framerusercontent.com"}
	runtimeMarkers   = []string{"__framer", "framer.com", "window.__framer", "__FRAMER__", "events.framer"}
	analyticsMarkers = []string{"gtag", "analytics", "_paq"}
	beaconHosts      = []string{"cloudflareinsights.com"}

	overlaySelectors = []string{"#__framer-badge-container", `iframe[src*="framer.com"]`}
	builderMeta      = `meta[name="framer-search-index"], meta[name="framer-search-index-fallback"]`
	builtWithComment = "Built with Framer"
)

// stripRuntime removes builder runtime scripts, bootstrap snippets, small
// analytics snippets, module preloads and analytics beacons.
func (t *Transformer) stripRuntime(_ context.Context, doc *goquery.Document, _ *DocContext) bool {
	removed := 0

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if t.isRuntimeScript(src) || containsAny(src, beaconHosts) {
			s.Remove()
			removed++
		}
	})

	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		body := s.Text()
		if containsAny(body, runtimeMarkers) ||
			(len(body) < smallSnippetLimit && containsAny(body, analyticsMarkers)) {
			s.Remove()
			removed++
		}
	})

	removed += removeAll(doc.Find(`link[rel="modulepreload"]`))
	return removed > 0
}

func (t *Transformer) isRuntimeScript(src string) bool {
	src = strings.TrimSpace(src)
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
		if u.Host != "" && t.opts.Rewriter != nil && t.opts.Rewriter.IsPreviewHost(u.Hostname()) {
			return true
		}
	}
	return strings.HasSuffix(p, ".mjs") || containsAny(src, runtimeHosts)
}

// stripBranding removes editor overlays, builder meta tags, origin-pointing
// canonical/alternate/og:url references and the "built with" comment.
func (t *Transformer) stripBranding(_ context.Context, doc *goquery.Document, _ *DocContext) bool {
	removed := 0
	for _, sel := range overlaySelectors {
		removed += removeAll(doc.Find(sel))
	}
	removed += removeAll(doc.Find(builderMeta))
	removed += removeAll(doc.Find(`meta[name="generator"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(s.AttrOr("content", "")), "framer")
	}))

	if t.opts.Rewriter != nil {
		removed += removeAll(doc.Find(`link[rel="canonical"], link[rel="alternate"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return t.opts.Rewriter.IsOriginURL(s.AttrOr("href", ""))
		}))
		removed += removeAll(doc.Find(`meta[property="og:url"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return t.opts.Rewriter.IsOriginURL(s.AttrOr("content", ""))
		}))
	}

	var comments []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode && strings.Contains(n.Data, builtWithComment) {
			comments = append(comments, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Get(0))
	for _, c := range comments {
		c.Parent.RemoveChild(c)
	}
	return removed+len(comments) > 0
}

// localizeAssets downloads remote resources and points references at the
// local copies. srcset is dropped; src stays authoritative.
func (t *Transformer) localizeAssets(ctx context.Context, doc *goquery.Document, dc *DocContext) bool {
	changed := false
	set := func(s *goquery.Selection, attr string, kind entity.AssetKind) {
		val, ok := s.Attr(attr)
		if !ok {
			return
		}
		if nv, ok := t.localizeRef(ctx, dc, val, kind); ok && nv != val {
			s.SetAttr(attr, nv)
			changed = true
		}
	}

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) { set(s, "src", entity.AssetScript) })
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if kind, ok := linkKind(s); ok {
			set(s, "href", kind)
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) { set(s, "src", entity.AssetImage) })
	doc.Find("video[src], audio[src]").Each(func(_ int, s *goquery.Selection) { set(s, "src", entity.AssetMedia) })
	doc.Find("source[src]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s.Parent()) == "picture" {
			set(s, "src", entity.AssetImage)
			return
		}
		set(s, "src", entity.AssetMedia)
	})
	doc.Find("video[poster]").Each(func(_ int, s *goquery.Selection) { set(s, "poster", entity.AssetImage) })
	doc.Find(`meta[property="og:image"], meta[name="twitter:image"], meta[property="twitter:image"]`).
		Each(func(_ int, s *goquery.Selection) { set(s, "content", entity.AssetImage) })

	if srcset := doc.Find("[srcset]"); srcset.Length() > 0 {
		srcset.RemoveAttr("srcset")
		changed = true
	}

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		css, _ := s.Attr("style")
		if nv := t.localizeCSS(ctx, dc, css); nv != css {
			s.SetAttr("style", nv)
			changed = true
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		css := s.Text()
		if nv := t.localizeCSS(ctx, dc, css); nv != css {
			setRawText(s, nv)
			changed = true
		}
	})
	return changed
}

func (t *Transformer) localizeCSS(ctx context.Context, dc *DocContext, css string) string {
	if !strings.Contains(css, "url(") {
		return css
	}
	return assets.CSSURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		m := assets.CSSURLPattern.FindStringSubmatch(match)
		if len(m) < 2 {
			return match
		}
		kind := assets.KindFromURL(m[1])
		if kind == entity.AssetOther {
			kind = entity.AssetImage
		}
		nv, ok := t.localizeRef(ctx, dc, m[1], kind)
		if !ok || nv == m[1] {
			return match
		}
		return fmt.Sprintf("url('%s')", nv)
	})
}

// linkKind maps a <link> element to the asset kind it loads.
func linkKind(s *goquery.Selection) (entity.AssetKind, bool) {
	rels := strings.Fields(strings.ToLower(s.AttrOr("rel", "")))
	for _, rel := range rels {
		switch rel {
		case "stylesheet":
			return entity.AssetStyle, true
		case "icon", "apple-touch-icon", "mask-icon":
			return entity.AssetImage, true
		case "preload", "prefetch":
			switch strings.ToLower(s.AttrOr("as", "")) {
			case "font":
				return entity.AssetFont, true
			case "style":
				return entity.AssetStyle, true
			case "image":
				return entity.AssetImage, true
			case "script":
				return entity.AssetScript, true
			}
		}
	}
	return "", false
}

// rewriteLinks points site-internal navigation links and root-relative CSS
// references at document-relative local paths. Links to site files that are
// not pages (PDFs, images) are downloaded like any other asset.
func (t *Transformer) rewriteLinks(ctx context.Context, doc *goquery.Document, dc *DocContext) bool {
	if t.opts.Rewriter == nil {
		return false
	}
	changed := false
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := absoluteHref(dc, href)
		if t.opts.Fetcher != nil && t.isSiteFile(abs) {
			if nv, ok := t.localizeRef(ctx, dc, href, assets.KindFromURL(abs)); ok {
				if nv != href {
					s.SetAttr("href", nv)
					changed = true
				}
				return
			}
		}
		local, ok := t.opts.Rewriter.Rewrite(abs)
		if !ok {
			return
		}
		if rel := linkrewrite.RelativeTo(dc.DocPath, local); rel != href {
			s.SetAttr("href", rel)
			changed = true
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		css, _ := s.Attr("style")
		if nv := t.rewriteCSSLinks(dc, css); nv != css {
			s.SetAttr("style", nv)
			changed = true
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		css := s.Text()
		if nv := t.rewriteCSSLinks(dc, css); nv != css {
			setRawText(s, nv)
			changed = true
		}
	})
	return changed
}

func (t *Transformer) rewriteCSSLinks(dc *DocContext, css string) string {
	if !strings.Contains(css, "url(") {
		return css
	}
	return assets.CSSURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		m := assets.CSSURLPattern.FindStringSubmatch(match)
		if len(m) < 2 {
			return match
		}
		// Fetchable refs belong to the asset stage, which already kept the
		// remote URL when the download failed.
		if t.opts.Fetcher != nil {
			if _, ok := t.resolveAsset(dc, m[1]); ok {
				return match
			}
		}
		// CSS only loads files, never pages.
		if u, err := url.Parse(m[1]); err != nil || path.Ext(u.Path) == "" {
			return match
		}
		local, ok := t.opts.Rewriter.Rewrite(m[1])
		if !ok {
			return match
		}
		return fmt.Sprintf("url('%s')", linkrewrite.RelativeTo(dc.DocPath, local))
	})
}

// isSiteFile reports whether href names a non-page file on the site.
func (t *Transformer) isSiteFile(href string) bool {
	h := strings.TrimSpace(href)
	if h == "" || !assets.IsAssetURL(h) {
		return false
	}
	if strings.HasPrefix(h, "/") && !strings.HasPrefix(h, "//") {
		return true
	}
	return t.opts.Rewriter.IsOriginURL(h)
}

// rebaseBlock re-points the relative form actions and links of a block
// written against the output root so they resolve from docPath.
func rebaseBlock(markup, docPath string) string {
	if path.Dir(docPath) == "." {
		return markup
	}
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	body := frag.Find("body")
	rebase := func(s *goquery.Selection, attr string) {
		v := strings.TrimSpace(s.AttrOr(attr, ""))
		if v == "" || strings.HasPrefix(v, "/") || strings.HasPrefix(v, "#") {
			return
		}
		if u, err := url.Parse(v); err != nil || u.Scheme != "" {
			return
		}
		s.SetAttr(attr, linkrewrite.RelativeTo(docPath, v))
	}
	body.Find("form[action]").Each(func(_ int, s *goquery.Selection) { rebase(s, "action") })
	body.Find("a[href]").Each(func(_ int, s *goquery.Selection) { rebase(s, "href") })
	out, err := body.Html()
	if err != nil {
		return markup
	}
	return out
}

// injectHelpers adds the configured stylesheet and script references once.
func (t *Transformer) injectHelpers(_ context.Context, doc *goquery.Document, dc *DocContext) bool {
	changed := false
	for _, p := range t.opts.Stylesheets {
		if ensureStylesheet(doc, dc, p) {
			changed = true
		}
	}
	for _, p := range t.opts.Scripts {
		rel := linkrewrite.RelativeTo(dc.DocPath, p)
		if hasAttrValue(doc.Find("script[src]"), "src", rel) {
			continue
		}
		doc.Find("body").First().AppendHtml(fmt.Sprintf(`<script src="%s"></script>`, html.EscapeString(rel)))
		changed = true
	}
	return changed
}

func ensureStylesheet(doc *goquery.Document, dc *DocContext, p string) bool {
	rel := linkrewrite.RelativeTo(dc.DocPath, p)
	if hasAttrValue(doc.Find("link[href]"), "href", rel) {
		return false
	}
	doc.Find("head").First().AppendHtml(fmt.Sprintf(`<link rel="stylesheet" href="%s">`, html.EscapeString(rel)))
	return true
}

// injectForms inserts the configured form block into its template document.
// Placement: parent of the innermost element containing the keyword, else
// main, #main or body.
func (t *Transformer) injectForms(_ context.Context, doc *goquery.Document, dc *DocContext) bool {
	changed := false
	for _, f := range t.opts.Forms {
		if f.Document != dc.DocPath {
			continue
		}
		if f.Stylesheet != "" && ensureStylesheet(doc, dc, f.Stylesheet) {
			changed = true
		}
		if doc.Find("." + FormMarkerClass).Length() > 0 {
			continue
		}

		target := keywordParent(doc, f.Keyword)
		if target == nil {
			var where string
			target, where = fallbackRoot(doc)
			t.logger.Warn("Form keyword not found, using fallback location",
				zap.String("doc", dc.DocPath),
				zap.String("keyword", f.Keyword),
				zap.String("fallback", where),
			)
		}
		target.AppendHtml(rebaseBlock(f.Markup, dc.DocPath))
		changed = true
	}
	return changed
}

// successPage swaps the form container of the success document for the
// acknowledgment block.
func (t *Transformer) successPage(_ context.Context, doc *goquery.Document, dc *DocContext) bool {
	if t.opts.SuccessDocument == "" || dc.DocPath != t.opts.SuccessDocument {
		return false
	}
	container := doc.Find("." + FormMarkerClass)
	if container.Length() > 0 {
		if container.Find("form").Length() == 0 && container.Children().Length() > 0 {
			return false
		}
		container.SetHtml(rebaseBlock(t.opts.SuccessMarkup, dc.DocPath))
		return true
	}

	target, where := fallbackRoot(doc)
	t.logger.Warn("Form container not found in success document, appending acknowledgment",
		zap.String("doc", dc.DocPath),
		zap.String("fallback", where),
	)
	target.AppendHtml(fmt.Sprintf(`<div class="%s">%s</div>`, FormMarkerClass, rebaseBlock(t.opts.SuccessMarkup, dc.DocPath)))
	return true
}

var skipKeywordScan = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// keywordParent returns the parent of the innermost body element whose text
// contains keyword, or nil.
func keywordParent(doc *goquery.Document, keyword string) *goquery.Selection {
	if keyword == "" {
		return nil
	}
	var match *goquery.Selection
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if skipKeywordScan[goquery.NodeName(s)] || !strings.Contains(s.Text(), keyword) {
			return true
		}
		inner := s.Children().FilterFunction(func(_ int, c *goquery.Selection) bool {
			return !skipKeywordScan[goquery.NodeName(c)] && strings.Contains(c.Text(), keyword)
		})
		if inner.Length() > 0 {
			return true
		}
		match = s
		return false
	})
	if match == nil {
		return nil
	}
	if parent := match.Parent(); parent.Length() > 0 && goquery.NodeName(parent) != "html" {
		return parent
	}
	return match
}

func fallbackRoot(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range []string{"main", "#main", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s, sel
		}
	}
	return doc.Selection, "document"
}
