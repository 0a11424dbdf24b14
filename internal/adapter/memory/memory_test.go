package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
)

func TestStatusRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewStatusRepo()

	_, err := repo.GetStatus(ctx, "https://example.com/")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	now := time.Now()
	require.NoError(t, repo.SetStatus(ctx, &entity.CrawlStatus{URL: "https://example.com/", State: entity.StateInProgress, UpdatedAt: now}))
	require.NoError(t, repo.SetStatus(ctx, &entity.CrawlStatus{URL: "https://example.com/", State: entity.StateSaved, UpdatedAt: now}))

	st, err := repo.GetStatus(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, entity.StateSaved, st.State)
}

func TestPageLedger(t *testing.T) {
	ctx := context.Background()
	ledger := NewPageLedger()

	_, err := ledger.FindPage(ctx, "https://example.com/about")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, ledger.SavePage(ctx, &entity.PageRecord{
		URL:       "https://example.com/about",
		Markup:    "<html></html>",
		LocalPath: "about.html",
		State:     entity.StateSaved,
	}))
	p, err := ledger.FindPage(ctx, "https://example.com/about")
	require.NoError(t, err)
	assert.Equal(t, "about.html", p.LocalPath)
	assert.Empty(t, p.Markup)

	require.NoError(t, ledger.SaveIssues(ctx, entity.NewReport(time.Now(), 1, nil)))
	assert.Len(t, ledger.Reports(), 1)
}
