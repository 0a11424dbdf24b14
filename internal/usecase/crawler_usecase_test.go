package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/adapter/memory"
	"github.com/user/sitemirror/internal/assets"
	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/linkrewrite"
	"github.com/user/sitemirror/internal/repository"
	"github.com/user/sitemirror/internal/transform"
)

const site = "https://example-site.com"

type fakePage struct {
	html   string
	status int
	err    error
}

type fakeRenderer struct {
	pages map[string]fakePage
	calls []string
}

func (r *fakeRenderer) Render(_ context.Context, url string) (*entity.RenderedPage, error) {
	r.calls = append(r.calls, url)
	p, ok := r.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrNavigationFailed, url)
	}
	if p.err != nil {
		return nil, p.err
	}
	status := p.status
	if status == 0 {
		status = 200
	}
	rendered := &entity.RenderedPage{URL: url, StatusCode: status, HTML: p.html, Duration: time.Millisecond}
	if status > 299 {
		return rendered, fmt.Errorf("%w: %d", repository.ErrBadStatus, status)
	}
	return rendered, nil
}

func (r *fakeRenderer) Close() {}

func linksPage(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>t</title></head><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type crawlFixture struct {
	crawler   Crawler
	outputDir string
	inventory string
	status    *memory.StatusRepo
	ledger    *memory.PageLedger
}

func newCrawlFixture(t *testing.T, renderer repository.Renderer, maxDepth int) crawlFixture {
	t.Helper()
	rw := linkrewrite.New("example-site.com", nil)
	tr := transform.New(transform.Options{Rewriter: rw}, zap.NewNop())
	fx := crawlFixture{
		outputDir: t.TempDir(),
		inventory: filepath.Join(t.TempDir(), "asset_inventory.csv"),
		status:    memory.NewStatusRepo(),
		ledger:    memory.NewPageLedger(),
	}
	fx.crawler = NewCrawlerUseCase(renderer, tr, assets.NewCache(), rw, fx.status, fx.ledger, CrawlerConfig{
		OutputDir:     fx.outputDir,
		MaxDepth:      maxDepth,
		InventoryFile: fx.inventory,
	}, zap.NewNop())
	return fx
}

func TestCrawl_RespectsDepthBound(t *testing.T) {
	renderer := &fakeRenderer{pages: map[string]fakePage{
		site + "/":  {html: linksPage("/a")},
		site + "/a": {html: linksPage("/b")},
		site + "/b": {html: linksPage("/c")},
		site + "/c": {html: linksPage()},
	}}

	tests := []struct {
		depth int
		want  []string
	}{
		{depth: 0, want: []string{site + "/"}},
		{depth: 1, want: []string{site + "/", site + "/a"}},
		{depth: 2, want: []string{site + "/", site + "/a", site + "/b"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth %d", tt.depth), func(t *testing.T) {
			renderer.calls = nil
			fx := newCrawlFixture(t, renderer, tt.depth)

			res, err := fx.crawler.Crawl(context.Background(), site+"/")
			require.NoError(t, err)
			assert.Equal(t, tt.want, renderer.calls)
			assert.Equal(t, len(tt.want), res.Saved)
		})
	}
}

func TestCrawl_FailureDoesNotStopSiblings(t *testing.T) {
	renderer := &fakeRenderer{pages: map[string]fakePage{
		site + "/":        {html: linksPage("/bad", "/missing", "/good")},
		site + "/bad":     {err: fmt.Errorf("%w: %s", repository.ErrNavigationTimeout, "bad")},
		site + "/missing": {status: 404, html: linksPage("/never")},
		site + "/good":    {html: linksPage()},
	}}
	fx := newCrawlFixture(t, renderer, 3)

	res, err := fx.crawler.Crawl(context.Background(), site+"/")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, 2, res.Failed)
	assert.NotContains(t, renderer.calls, site+"/never")
	assert.FileExists(t, filepath.Join(fx.outputDir, "good.html"))
	assert.NoFileExists(t, filepath.Join(fx.outputDir, "bad.html"))

	st, err := fx.status.GetStatus(context.Background(), site+"/bad")
	require.NoError(t, err)
	assert.Equal(t, entity.StateFailed, st.State)
	assert.Contains(t, st.FailureReason, "timed out")

	page, err := fx.ledger.FindPage(context.Background(), site+"/missing")
	require.NoError(t, err)
	assert.Equal(t, entity.StateFailed, page.State)
	assert.Equal(t, 404, page.HTTPStatusCode)
}

func TestCrawl_CanonicalizesLinks(t *testing.T) {
	renderer := &fakeRenderer{pages: map[string]fakePage{
		site + "/": {html: linksPage(
			"https://www.example-site.com/about/#team",
			"/about",
			"about?ref=nav",
			"http://example-site.com/contact",
			"https://other.com/x",
			"mailto:hi@example-site.com",
			"/files/brochure.pdf",
			"/img/hero.png",
			"#top",
		)},
		site + "/about":   {html: linksPage()},
		site + "/contact": {html: linksPage()},
	}}
	fx := newCrawlFixture(t, renderer, 1)

	_, err := fx.crawler.Crawl(context.Background(), site+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{site + "/", site + "/about", site + "/contact"}, renderer.calls)
}

func TestCrawl_SavesTransformedPages(t *testing.T) {
	renderer := &fakeRenderer{pages: map[string]fakePage{
		site + "/":            {html: linksPage("https://www.example-site.com/about/", "/blog/post-1")},
		site + "/about":       {html: linksPage("/")},
		site + "/blog/post-1": {html: linksPage("/about")},
	}}
	fx := newCrawlFixture(t, renderer, 2)

	_, err := fx.crawler.Crawl(context.Background(), site+"/")
	require.NoError(t, err)

	read := func(name string) *goquery.Document {
		data, err := os.ReadFile(filepath.Join(fx.outputDir, filepath.FromSlash(name)))
		require.NoError(t, err)
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
		require.NoError(t, err)
		return doc
	}

	index := read("index.html")
	assert.Equal(t, "about.html", index.Find("a").Eq(0).AttrOr("href", ""))
	assert.Equal(t, "blog/post-1.html", index.Find("a").Eq(1).AttrOr("href", ""))
	assert.Equal(t, "index.html", read("about.html").Find("a").AttrOr("href", ""))
	assert.Equal(t, "../about.html", read("blog/post-1.html").Find("a").AttrOr("href", ""))

	assert.FileExists(t, filepath.Join(fx.outputDir, "assets", "mirror-fix.css"))

	inv, err := os.ReadFile(fx.inventory)
	require.NoError(t, err)
	assert.Equal(t, "type,url\n", string(inv))
}

func TestCrawl_Cancelled(t *testing.T) {
	renderer := &fakeRenderer{pages: map[string]fakePage{site + "/": {html: linksPage()}}}
	fx := newCrawlFixture(t, renderer, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.crawler.Crawl(ctx, site+"/")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, renderer.calls)
}

func TestCrawl_InvalidStartURL(t *testing.T) {
	fx := newCrawlFixture(t, &fakeRenderer{}, 1)
	_, err := fx.crawler.Crawl(context.Background(), "not a url")
	assert.Error(t, err)
}
