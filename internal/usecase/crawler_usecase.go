package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/assets"
	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/linkrewrite"
	"github.com/user/sitemirror/internal/repository"
	"github.com/user/sitemirror/internal/transform"
	"github.com/user/sitemirror/pkg/metrics"
	"github.com/user/sitemirror/pkg/utils"
)

// Crawler defines the interface for the mirroring crawl.
type Crawler interface {
	Crawl(ctx context.Context, startURL string) (*CrawlResult, error)
}

// DocumentTransformer is satisfied by *transform.Transformer.
type DocumentTransformer interface {
	Transform(ctx context.Context, markup string, dc transform.DocContext) (string, bool, error)
}

// AssetInventory lists the asset references seen during a run.
type AssetInventory interface {
	Records() []entity.AssetRecord
}

type CrawlerConfig struct {
	OutputDir string
	MaxDepth  int
	// InventoryFile is written after the crawl when non-empty.
	InventoryFile string
}

type CrawlResult struct {
	Saved  int
	Failed int
	Assets int
}

type crawlerUseCase struct {
	renderer    repository.Renderer
	transformer DocumentTransformer
	inventory   AssetInventory
	rewriter    *linkrewrite.Rewriter
	statusRepo  repository.StatusRepository
	ledger      repository.PageLedger
	cfg         CrawlerConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewCrawlerUseCase creates a new instance of the crawler use case.
func NewCrawlerUseCase(
	renderer repository.Renderer,
	transformer DocumentTransformer,
	inventory AssetInventory,
	rewriter *linkrewrite.Rewriter,
	statusRepo repository.StatusRepository,
	ledger repository.PageLedger,
	cfg CrawlerConfig,
	logger *zap.Logger,
) Crawler {
	return &crawlerUseCase{
		renderer:    renderer,
		transformer: transformer,
		inventory:   inventory,
		rewriter:    rewriter,
		statusRepo:  statusRepo,
		ledger:      ledger,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Crawl renders pages breadth-first from startURL up to the depth bound,
// saving each transformed page below the output directory. Page failures are
// recorded and skipped; only setup errors, unwritable output and
// cancellation abort the run.
func (uc *crawlerUseCase) Crawl(ctx context.Context, startURL string) (*CrawlResult, error) {
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q", startURL)
	}
	if err := os.MkdirAll(uc.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if _, err := transform.WriteStaticHelpers(uc.cfg.OutputDir); err != nil {
		return nil, err
	}

	frontier := NewFrontier(uc.cfg.MaxDepth)
	frontier.Push(uc.canonical(start, start), 0)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, ok := frontier.Pop()
		if !ok {
			break
		}
		metrics.FrontierSize.Set(float64(frontier.Len()))

		links, err := uc.processURL(ctx, frontier, entry)
		if err != nil {
			return nil, err
		}
		if entry.Depth+1 > uc.cfg.MaxDepth {
			continue
		}
		for _, l := range links {
			frontier.Push(l, entry.Depth+1)
		}
	}
	metrics.FrontierSize.Set(0)

	result := &CrawlResult{
		Saved:  frontier.Count(entity.StateSaved),
		Failed: frontier.Count(entity.StateFailed),
	}
	if uc.inventory != nil {
		records := uc.inventory.Records()
		result.Assets = len(records)
		if uc.cfg.InventoryFile != "" {
			if err := assets.WriteInventory(uc.cfg.InventoryFile, records); err != nil {
				return nil, err
			}
		}
	}

	uc.logger.Info("Crawl finished",
		zap.String("start_url", startURL),
		zap.Int("saved", result.Saved),
		zap.Int("failed", result.Failed),
		zap.Int("assets", result.Assets),
	)
	return result, nil
}

// processURL renders, transforms and saves one page and returns the
// same-origin links found in the rendered DOM.
func (uc *crawlerUseCase) processURL(ctx context.Context, frontier *Frontier, entry frontierEntry) ([]string, error) {
	frontier.Mark(entry.URL, entity.StateInProgress)
	uc.publishStatus(ctx, entry, entity.StateInProgress, "")
	uc.logger.Info("Rendering page", zap.String("url", entry.URL), zap.Int("depth", entry.Depth))

	pageURL, _ := url.Parse(entry.URL)
	rendered, err := uc.renderer.Render(ctx, entry.URL)
	if rendered != nil {
		metrics.RenderDuration.WithLabelValues(pageURL.Hostname()).Observe(rendered.Duration.Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		uc.handleCrawlFailure(ctx, frontier, entry, rendered, err)
		return nil, nil
	}

	local := linkrewrite.LocalPath(entry.URL)
	markup, _, err := uc.transformer.Transform(ctx, rendered.HTML, transform.DocContext{
		DocPath: local,
		PageURL: entry.URL,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		uc.handleCrawlFailure(ctx, frontier, entry, rendered, err)
		return nil, nil
	}

	full := filepath.Join(uc.cfg.OutputDir, filepath.FromSlash(local))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", local, err)
	}
	if err := os.WriteFile(full, []byte(markup), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", local, err)
	}

	frontier.Mark(entry.URL, entity.StateSaved)
	metrics.PagesTotal.WithLabelValues("saved", "").Inc()
	uc.publishStatus(ctx, entry, entity.StateSaved, "")
	uc.recordPage(ctx, &entity.PageRecord{
		URL:            entry.URL,
		Depth:          entry.Depth,
		LocalPath:      local,
		State:          entity.StateSaved,
		HTTPStatusCode: rendered.StatusCode,
		RenderTimeMS:   int(rendered.Duration.Milliseconds()),
		CapturedAt:     uc.now(),
	})
	uc.logger.Info("Page saved", zap.String("url", entry.URL), zap.String("path", local))

	return uc.extractLinks(rendered.HTML, pageURL), nil
}

func (uc *crawlerUseCase) handleCrawlFailure(ctx context.Context, frontier *Frontier, entry frontierEntry, rendered *entity.RenderedPage, crawlErr error) {
	errorType := "unknown"
	switch {
	case errors.Is(crawlErr, repository.ErrNavigationTimeout):
		errorType = "timeout"
	case errors.Is(crawlErr, repository.ErrNavigationFailed):
		errorType = "navigation"
	case errors.Is(crawlErr, repository.ErrBadStatus):
		errorType = "status"
	}
	metrics.PagesTotal.WithLabelValues("failed", errorType).Inc()
	uc.logger.Error("Page crawl failed", zap.String("url", entry.URL), zap.String("error_type", errorType), zap.Error(crawlErr))

	frontier.Mark(entry.URL, entity.StateFailed)
	uc.publishStatus(ctx, entry, entity.StateFailed, crawlErr.Error())

	status := 0
	if rendered != nil {
		status = rendered.StatusCode
	}
	uc.recordPage(ctx, &entity.PageRecord{
		URL:            entry.URL,
		Depth:          entry.Depth,
		LocalPath:      linkrewrite.LocalPath(entry.URL),
		State:          entity.StateFailed,
		FailureReason:  crawlErr.Error(),
		HTTPStatusCode: status,
		CapturedAt:     uc.now(),
	})
}

// publishStatus is best effort; sink errors do not stop the crawl.
func (uc *crawlerUseCase) publishStatus(ctx context.Context, entry frontierEntry, state entity.CrawlState, reason string) {
	if uc.statusRepo == nil {
		return
	}
	err := uc.statusRepo.SetStatus(ctx, &entity.CrawlStatus{
		URL:           entry.URL,
		State:         state,
		Depth:         entry.Depth,
		UpdatedAt:     uc.now(),
		FailureReason: reason,
	})
	if err != nil {
		uc.logger.Warn("Failed to publish crawl status", zap.String("url", entry.URL), zap.Error(err))
	}
}

func (uc *crawlerUseCase) recordPage(ctx context.Context, page *entity.PageRecord) {
	if uc.ledger == nil {
		return
	}
	if err := uc.ledger.SavePage(ctx, page); err != nil {
		uc.logger.Warn("Failed to record page in ledger", zap.String("url", page.URL), zap.Error(err))
	}
}

// extractLinks returns canonical same-origin page links from markup.
func (uc *crawlerUseCase) extractLinks(markup string, pageURL *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := utils.ToAbsoluteURL(pageURL, href)
		if err != nil {
			return
		}
		abs, err := url.Parse(resolved)
		if err != nil {
			return
		}
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !uc.sameSite(abs.Hostname(), pageURL.Hostname()) {
			return
		}
		if assets.IsAssetURL(abs.String()) {
			return
		}
		c := uc.canonical(abs, pageURL)
		if !seen[c] {
			seen[c] = true
			links = append(links, c)
		}
	})
	return links
}

func (uc *crawlerUseCase) sameSite(host, pageHost string) bool {
	if strings.EqualFold(host, pageHost) {
		return true
	}
	return uc.rewriter != nil && (uc.rewriter.IsSiteHost(host) || uc.rewriter.IsPreviewHost(host))
}

// canonical rewrites u onto the scheme and host of base, dropping the
// fragment, the query and any trailing slash except the root's.
func (uc *crawlerUseCase) canonical(u, base *url.URL) string {
	c := *u
	c.Scheme = base.Scheme
	c.Host = base.Host
	c.Fragment = ""
	c.RawFragment = ""
	c.RawQuery = ""
	c.ForceQuery = false
	c.User = nil
	if c.Path == "" {
		c.Path = "/"
	}
	if len(c.Path) > 1 {
		c.Path = strings.TrimRight(c.Path, "/")
		if c.Path == "" {
			c.Path = "/"
		}
	}
	c.RawPath = ""
	return c.String()
}
