package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
)

// StatusReader answers "what happened to this URL" from the configured sinks.
type StatusReader interface {
	GetStatus(ctx context.Context, url string) (*PageStatus, error)
}

// PageStatus combines the live crawl state with the ledger record. Either
// part may be nil when the sink has nothing for the URL.
type PageStatus struct {
	URL    string
	State  entity.CrawlState
	Status *entity.CrawlStatus
	Page   *entity.PageRecord
}

type statusUseCase struct {
	statusRepo repository.StatusRepository
	ledger     repository.PageLedger
}

func NewStatusUseCase(statusRepo repository.StatusRepository, ledger repository.PageLedger) StatusReader {
	return &statusUseCase{statusRepo: statusRepo, ledger: ledger}
}

func (uc *statusUseCase) GetStatus(ctx context.Context, url string) (*PageStatus, error) {
	res := &PageStatus{URL: url, State: entity.StateUnvisited}

	st, err := uc.statusRepo.GetStatus(ctx, url)
	switch {
	case err == nil:
		res.Status = st
		res.State = st.State
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("read crawl status: %w", err)
	}

	page, err := uc.ledger.FindPage(ctx, url)
	switch {
	case err == nil:
		res.Page = page
		// The ledger outlives the status TTL.
		if res.Status == nil {
			res.State = page.State
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("read page ledger: %w", err)
	}
	return res, nil
}
