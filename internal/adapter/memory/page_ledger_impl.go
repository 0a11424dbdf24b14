package memory

import (
	"context"
	"sync"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
)

// PageLedger keeps page records and reports in process memory.
type PageLedger struct {
	mu      sync.RWMutex
	pages   map[string]entity.PageRecord
	reports []entity.Report
}

var _ repository.PageLedger = (*PageLedger)(nil)

func NewPageLedger() *PageLedger {
	return &PageLedger{pages: make(map[string]entity.PageRecord)}
}

// SavePage stores a copy of the record without its markup.
func (l *PageLedger) SavePage(_ context.Context, page *entity.PageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := *page
	p.Markup = ""
	l.pages[p.URL] = p
	return nil
}

func (l *PageLedger) FindPage(_ context.Context, url string) (*entity.PageRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.pages[url]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (l *PageLedger) SaveIssues(_ context.Context, report *entity.Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, *report)
	return nil
}

// Reports returns the reports saved so far.
func (l *PageLedger) Reports() []entity.Report {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]entity.Report(nil), l.reports...)
}
