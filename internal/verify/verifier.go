// Package verify scans a finished output tree for dangling local references
// and leftovers of the live site. It never modifies the tree.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/assets"
	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/pkg/metrics"
)

const maxDetailLen = 120

// Link relations that name documents or hosts rather than loaded assets.
var nonAssetRels = map[string]bool{"canonical": true, "alternate": true, "preconnect": true, "dns-prefetch": true}

type Options struct {
	SiteDomain      string
	PreviewDomains  []string
	KeepRemoteHosts []string
	// Inventory enables the UNFETCHED_ASSET cross-check when non-nil.
	Inventory []entity.AssetRecord
	Now       func() time.Time
}

type Verifier struct {
	opts        Options
	siteRef     *regexp.Regexp
	previewRefs []*regexp.Regexp
	logger      *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Verifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	v := &Verifier{opts: opts, logger: logger}
	if d := strings.TrimPrefix(strings.ToLower(opts.SiteDomain), "www."); d != "" {
		v.siteRef = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(d))
	}
	for _, p := range opts.PreviewDomains {
		if p = strings.TrimSpace(p); p != "" {
			v.previewRefs = append(v.previewRefs, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)))
		}
	}
	return v
}

// Report runs Verify and buckets the issues by severity.
func (v *Verifier) Report(ctx context.Context, root string) (*entity.Report, error) {
	issues, files, err := v.Verify(ctx, root)
	if err != nil {
		return nil, err
	}
	r := entity.NewReport(v.opts.Now().UTC(), files, issues)
	v.logger.Info("Verification finished",
		zap.Int("files", files),
		zap.Int("errors", len(r.Errors)),
		zap.Int("warnings", len(r.Warnings)),
		zap.Int("info", len(r.Info)),
	)
	return r, nil
}

// Verify checks every .html file outside assets/ and returns the issues and
// the number of files checked.
func (v *Verifier) Verify(ctx context.Context, root string) ([]entity.Issue, int, error) {
	var issues []entity.Issue
	files := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && assets.IsAssetsPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".html") {
			return nil
		}
		files++
		found, err := v.checkFile(root, rel)
		if err != nil {
			return err
		}
		issues = append(issues, found...)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("verify %s: %w", root, err)
	}

	if v.opts.Inventory != nil {
		issues = append(issues, v.checkInventory(root)...)
	}

	for _, is := range issues {
		metrics.IssuesTotal.WithLabelValues(string(is.Kind), string(is.Severity)).Inc()
	}
	return issues, files, nil
}

func (v *Verifier) checkFile(root, rel string) ([]entity.Issue, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rel, err)
	}

	var issues []entity.Issue
	add := func(kind entity.IssueKind, sev entity.Severity, detail string) {
		issues = append(issues, entity.Issue{Kind: kind, Severity: sev, File: rel, Detail: truncate(detail)})
	}

	doc.Find("img[src], script[src], link[href], source[src], video[src], audio[src]").Each(func(_ int, s *goquery.Selection) {
		attr := "src"
		if goquery.NodeName(s) == "link" {
			attr = "href"
			for _, rel := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
				if nonAssetRels[rel] {
					return
				}
			}
		}
		ref := strings.TrimSpace(s.AttrOr(attr, ""))
		switch {
		case ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#"):
		case isRemote(ref):
			if !v.keepRemote(ref) {
				add(entity.IssueRemoteAsset, entity.SeverityWarn, "Still remote: "+ref)
			}
		case hasScheme(ref):
		default:
			if goquery.NodeName(s) == "link" && strings.HasSuffix(stripQuery(ref), ".html") {
				return
			}
			if !exists(root, rel, ref) {
				add(entity.IssueMissingAsset, entity.SeverityError, "Missing: "+ref)
			}
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || isRemote(href) || hasScheme(href) {
			return
		}
		// Extensionless hrefs are directory-style links the mirror never emits.
		if path.Ext(stripQuery(href)) == "" {
			return
		}
		if !exists(root, rel, href) {
			add(entity.IssueBrokenLink, entity.SeverityError, "Broken nav: "+href)
		}
	})

	if v.siteRef != nil {
		if n := len(v.siteRef.FindAllIndex(content, -1)); n > 0 {
			add(entity.IssueAbsoluteRef, entity.SeverityWarn, fmt.Sprintf("%d remaining %s references", n, v.opts.SiteDomain))
		}
	}
	for i, re := range v.previewRefs {
		if n := len(re.FindAllIndex(content, -1)); n > 0 {
			add(entity.IssueBuilderRef, entity.SeverityInfo, fmt.Sprintf("%d builder preview references (%s)", n, v.opts.PreviewDomains[i]))
		}
	}

	missingAlt := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		alt, hasAlt := s.Attr("alt")
		if _, hidden := s.Attr("aria-hidden"); (!hasAlt || strings.TrimSpace(alt) == "") && !hidden {
			missingAlt++
		}
	})
	if missingAlt > 0 {
		add(entity.IssueAccessibility, entity.SeverityInfo, fmt.Sprintf("%d images missing alt text", missingAlt))
	}

	remoteCSS := 0
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		remoteCSS += v.countRemoteCSS(s.Text())
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		remoteCSS += v.countRemoteCSS(s.AttrOr("style", ""))
	})
	if remoteCSS > 0 {
		add(entity.IssueCSSRemote, entity.SeverityWarn, fmt.Sprintf("%d remote CSS url() refs still present", remoteCSS))
	}

	return issues, nil
}

func (v *Verifier) countRemoteCSS(css string) int {
	n := 0
	for _, m := range assets.CSSURLPattern.FindAllStringSubmatch(css, -1) {
		if isRemote(m[1]) && !v.keepRemote(m[1]) {
			n++
		}
	}
	return n
}

// checkInventory reports inventory assets whose derived local file is absent.
func (v *Verifier) checkInventory(root string) []entity.Issue {
	var issues []entity.Issue
	for _, rec := range v.opts.Inventory {
		raw := rec.URL
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || v.keepRemote(raw) {
			continue
		}
		u.Fragment = ""
		local := assets.LocalPath(u, rec.Kind)
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(local))); errors.Is(err, fs.ErrNotExist) {
			issues = append(issues, entity.Issue{
				Kind:     entity.IssueUnfetchedAsset,
				Severity: entity.SeverityWarn,
				File:     local,
				Detail:   truncate("Not downloaded: " + rec.URL),
			})
		}
	}
	return issues
}

func (v *Verifier) keepRemote(ref string) bool {
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range v.opts.KeepRemoteHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// WriteReport stores the report as indented JSON.
func WriteReport(p string, r *entity.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", p, err)
	}
	return nil
}

func isRemote(ref string) bool {
	l := strings.ToLower(ref)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "//")
}

func hasScheme(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != ""
}

func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// exists resolves ref against the document's directory (or the root for
// root-relative refs) and checks the file, trying the URL-decoded form too.
func exists(root, docRel, ref string) bool {
	clean := stripQuery(ref)
	var target string
	if strings.HasPrefix(clean, "/") {
		target = path.Clean(clean)
	} else {
		target = path.Join(path.Dir(docRel), clean)
	}
	full := filepath.Join(root, filepath.FromSlash(target))
	if _, err := os.Stat(full); err == nil {
		return true
	}
	decoded, err := url.PathUnescape(target)
	if err != nil || decoded == target {
		return false
	}
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(decoded)))
	return err == nil
}

// truncate caps s at maxDetailLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	cut := maxDetailLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
