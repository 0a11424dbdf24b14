package repository

import (
	"context"

	"github.com/user/sitemirror/internal/entity"
)

// StatusRepository publishes the per-URL crawl state.
type StatusRepository interface {
	// SetStatus records the current state of a URL.
	SetStatus(ctx context.Context, status *entity.CrawlStatus) error
	// GetStatus returns the last recorded state, or ErrNotFound.
	GetStatus(ctx context.Context, url string) (*entity.CrawlStatus, error)
}
