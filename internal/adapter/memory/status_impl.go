package memory

import (
	"context"
	"sync"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
)

// StatusRepo keeps crawl state in process memory. It is the default sink
// when no Redis address is configured.
type StatusRepo struct {
	mu       sync.RWMutex
	statuses map[string]entity.CrawlStatus
}

var _ repository.StatusRepository = (*StatusRepo)(nil)

func NewStatusRepo() *StatusRepo {
	return &StatusRepo{statuses: make(map[string]entity.CrawlStatus)}
}

func (r *StatusRepo) SetStatus(_ context.Context, status *entity.CrawlStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[status.URL] = *status
	return nil
}

func (r *StatusRepo) GetStatus(_ context.Context, url string) (*entity.CrawlStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.statuses[url]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}
