package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/assets"
	"github.com/user/sitemirror/internal/entity"
)

// ImageOptimizer is satisfied by *assets.Optimizer.
type ImageOptimizer interface {
	Run(ctx context.Context, root string) (assets.OptimizeResult, error)
}

// Pipeline runs crawl, patch, optimize and verify in order over one output tree.
type Pipeline struct {
	crawler   Crawler
	patcher   Patcher
	optimizer ImageOptimizer
	qa        QA
	outputDir string
	logger    *zap.Logger
}

func NewPipeline(crawler Crawler, patcher Patcher, optimizer ImageOptimizer, qa QA, outputDir string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		crawler:   crawler,
		patcher:   patcher,
		optimizer: optimizer,
		qa:        qa,
		outputDir: outputDir,
		logger:    logger,
	}
}

// Run stops at the first stage that fails.
func (p *Pipeline) Run(ctx context.Context, startURL string) (*entity.Report, error) {
	p.logger.Info("Pipeline started", zap.String("start_url", startURL), zap.String("output_dir", p.outputDir))

	crawl, err := p.crawler.Crawl(ctx, startURL)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}
	patch, err := p.patcher.Patch(ctx, p.outputDir)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	opt, err := p.optimizer.Run(ctx, p.outputDir)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	report, err := p.qa.Run(ctx, p.outputDir)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	p.logger.Info("Pipeline finished",
		zap.Int("pages_saved", crawl.Saved),
		zap.Int("pages_failed", crawl.Failed),
		zap.Int("documents_patched", patch.Changed),
		zap.Int("images_optimized", opt.Optimized),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}
