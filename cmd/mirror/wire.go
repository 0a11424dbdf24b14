package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/adapter/chromedp_renderer"
	"github.com/user/sitemirror/internal/adapter/memory"
	"github.com/user/sitemirror/internal/adapter/postgres"
	redis_adapter "github.com/user/sitemirror/internal/adapter/redis"
	"github.com/user/sitemirror/internal/assets"
	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/linkrewrite"
	"github.com/user/sitemirror/internal/repository"
	"github.com/user/sitemirror/internal/transform"
	"github.com/user/sitemirror/internal/usecase"
	"github.com/user/sitemirror/internal/verify"
	"github.com/user/sitemirror/pkg/config"
	"github.com/user/sitemirror/pkg/logger"
	"github.com/user/sitemirror/pkg/metrics"
)

// app holds the configuration and the resources opened for one command.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
	closers []func()

	// Shared by the transformer and the crawler so one run downloads each
	// asset once and the inventory sees every reference.
	cache *assets.Cache

	statusRepo repository.StatusRepository
	ledger     repository.PageLedger
}

func (a *app) setup(cfgFile string) error {
	cfg, err := config.Load(a.v, cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = log
	a.cache = assets.NewCache()
	a.logger.Info("Configuration loaded",
		zap.String("site_domain", cfg.SiteDomain),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("max_depth", cfg.MaxDepth),
	)
	return nil
}

// teardown releases resources in reverse order and flushes metrics.
func (a *app) teardown() error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.cfg == nil {
		return nil
	}
	err := metrics.WriteTextfile(a.cfg.MetricsFile)
	if a.logger != nil {
		if err != nil {
			a.logger.Error("Failed to write metrics file", zap.String("file", a.cfg.MetricsFile), zap.Error(err))
		}
		_ = a.logger.Sync()
	}
	return err
}

// --- Sinks ---

// sinks connects to Redis and Postgres when configured and falls back to
// in-memory stores otherwise. A configured sink that cannot be reached is
// fatal. Connections are opened once per command.
func (a *app) sinks(ctx context.Context) (repository.StatusRepository, repository.PageLedger, error) {
	if a.statusRepo != nil {
		return a.statusRepo, a.ledger, nil
	}
	var statusRepo repository.StatusRepository = memory.NewStatusRepo()
	var ledger repository.PageLedger = memory.NewPageLedger()

	if a.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis %s: %w", a.cfg.RedisAddr, err)
		}
		a.logger.Info("Redis connection established")
		statusRepo = redis_adapter.NewStatusRepo(rdb)
	}

	if a.cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, a.cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		pg := postgres.NewPageLedger(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		a.logger.Info("PostgreSQL connection pool established")
		ledger = pg
	}
	a.statusRepo, a.ledger = statusRepo, ledger
	return statusRepo, ledger, nil
}

// --- Components ---

func (a *app) rewriter() *linkrewrite.Rewriter {
	return linkrewrite.New(a.cfg.SiteDomain, a.cfg.PreviewDomains)
}

func (a *app) transformer() (*transform.Transformer, error) {
	forms := make([]transform.FormSpec, 0, len(a.cfg.Forms))
	for _, f := range a.cfg.Forms {
		markup, err := transform.LoadTemplate(f.Template)
		if err != nil {
			return nil, fmt.Errorf("form template for %s: %w", f.Document, err)
		}
		forms = append(forms, transform.FormSpec{
			Document:   f.Document,
			Keyword:    f.Keyword,
			Markup:     markup,
			Stylesheet: f.Stylesheet,
		})
	}

	fetcher := assets.NewFetcher(a.cfg.OutputDir, a.cache, a.logger,
		assets.WithTimeout(a.cfg.DownloadTimeout),
		assets.WithUserAgent(a.cfg.UserAgent),
	)
	return transform.New(transform.Options{
		Rewriter:        a.rewriter(),
		Fetcher:         fetcher,
		KeepRemoteHosts: a.cfg.KeepRemoteHosts,
		Stylesheets:     a.cfg.InjectStylesheets,
		Scripts:         a.cfg.InjectScripts,
		Forms:           forms,
		SuccessDocument: a.cfg.SuccessDocument,
		SuccessMarkup:   transform.AckMarkup(),
	}, a.logger), nil
}

func (a *app) crawler(ctx context.Context) (usecase.Crawler, error) {
	statusRepo, ledger, err := a.sinks(ctx)
	if err != nil {
		return nil, err
	}
	tr, err := a.transformer()
	if err != nil {
		return nil, err
	}
	renderer, err := chromedp_renderer.NewChromedpRenderer(a.cfg.UserAgent, a.cfg.NavigationTimeout, a.cfg.HydrationDelay, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, renderer.Close)

	return usecase.NewCrawlerUseCase(renderer, tr, a.cache, a.rewriter(), statusRepo, ledger, usecase.CrawlerConfig{
		OutputDir:     a.cfg.OutputDir,
		MaxDepth:      a.cfg.MaxDepth,
		InventoryFile: a.cfg.InventoryFile,
	}, a.logger), nil
}

func (a *app) patcher() (usecase.Patcher, error) {
	tr, err := a.transformer()
	if err != nil {
		return nil, err
	}
	return usecase.NewPatchUseCase(tr, a.cfg.StartURL, a.cfg.SuccessDocument, a.logger), nil
}

func (a *app) optimizer() *assets.Optimizer {
	return assets.NewOptimizer(a.cfg.OptimizeMinBytes, a.cfg.OptimizeMaxWidth, a.cfg.JPEGQuality, a.logger)
}

func (a *app) verifyOptions() verify.Options {
	return verify.Options{
		SiteDomain:      a.cfg.SiteDomain,
		PreviewDomains:  a.cfg.PreviewDomains,
		KeepRemoteHosts: a.cfg.KeepRemoteHosts,
	}
}

// qa builds the verification stage. A non-empty inventory path must exist;
// the file is read before any scanning starts.
func (a *app) qa(ctx context.Context, inventory string) (usecase.QA, error) {
	_, ledger, err := a.sinks(ctx)
	if err != nil {
		return nil, err
	}
	opts := a.verifyOptions()
	if inventory != "" {
		records, err := assets.ReadInventory(inventory)
		if err != nil {
			return nil, err
		}
		opts.Inventory = records
	}
	return usecase.NewQAUseCase(verify.New(opts, a.logger), ledger, a.cfg.ReportFile, a.logger), nil
}

func (a *app) pipeline(ctx context.Context) (*usecase.Pipeline, error) {
	crawler, err := a.crawler(ctx)
	if err != nil {
		return nil, err
	}
	patcher, err := a.patcher()
	if err != nil {
		return nil, err
	}
	_, ledger, err := a.sinks(ctx)
	if err != nil {
		return nil, err
	}
	reporter := &inventoryReporter{path: a.cfg.InventoryFile, opts: a.verifyOptions(), logger: a.logger}
	qa := usecase.NewQAUseCase(reporter, ledger, a.cfg.ReportFile, a.logger)
	return usecase.NewPipeline(crawler, patcher, a.optimizer(), qa, a.cfg.OutputDir, a.logger), nil
}

// inventoryReporter loads the inventory the crawl stage wrote just before
// verifying, so a run cross-checks against its own listing.
type inventoryReporter struct {
	path   string
	opts   verify.Options
	logger *zap.Logger
}

func (r *inventoryReporter) Report(ctx context.Context, root string) (*entity.Report, error) {
	opts := r.opts
	if r.path != "" {
		records, err := assets.ReadInventory(r.path)
		switch {
		case err == nil:
			opts.Inventory = records
		case errors.Is(err, repository.ErrInventoryMissing):
			r.logger.Warn("Inventory not found, skipping cross-check", zap.String("file", r.path))
		default:
			return nil, err
		}
	}
	return verify.New(opts, r.logger).Report(ctx, root)
}
