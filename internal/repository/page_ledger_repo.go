package repository

import (
	"context"

	"github.com/user/sitemirror/internal/entity"
)

// PageLedger records crawl outcomes and QA findings for later inspection.
type PageLedger interface {
	// SavePage stores the page record. If the URL already exists, it is updated.
	SavePage(ctx context.Context, page *entity.PageRecord) error
	// FindPage retrieves the record for a URL, or ErrNotFound.
	FindPage(ctx context.Context, url string) (*entity.PageRecord, error)
	// SaveIssues stores the issues of one verification run.
	SaveIssues(ctx context.Context, report *entity.Report) error
}
