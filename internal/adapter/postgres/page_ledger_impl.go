package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS mirror_pages (
	url              TEXT PRIMARY KEY,
	depth            INTEGER NOT NULL,
	local_path       TEXT NOT NULL,
	state            TEXT NOT NULL,
	failure_reason   TEXT NOT NULL DEFAULT '',
	http_status_code INTEGER NOT NULL DEFAULT 0,
	render_time_ms   INTEGER NOT NULL DEFAULT 0,
	captured_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS mirror_issues (
	id        BIGSERIAL PRIMARY KEY,
	run_at    TIMESTAMPTZ NOT NULL,
	kind      TEXT NOT NULL,
	severity  TEXT NOT NULL,
	file      TEXT NOT NULL,
	detail    TEXT NOT NULL
);`

// PageLedgerImpl provides a concrete implementation for the PageLedger interface using PostgreSQL.
type PageLedgerImpl struct {
	db *pgxpool.Pool
}

var _ repository.PageLedger = (*PageLedgerImpl)(nil)

// NewPageLedger creates a new instance of PageLedgerImpl.
func NewPageLedger(db *pgxpool.Pool) *PageLedgerImpl {
	return &PageLedgerImpl{db: db}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (r *PageLedgerImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// SavePage stores the page record. If the URL already exists, it is updated.
func (r *PageLedgerImpl) SavePage(ctx context.Context, p *entity.PageRecord) error {
	query := `
		INSERT INTO mirror_pages (url, depth, local_path, state, failure_reason, http_status_code, render_time_ms, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO UPDATE SET
			depth = EXCLUDED.depth,
			local_path = EXCLUDED.local_path,
			state = EXCLUDED.state,
			failure_reason = EXCLUDED.failure_reason,
			http_status_code = EXCLUDED.http_status_code,
			render_time_ms = EXCLUDED.render_time_ms,
			captured_at = EXCLUDED.captured_at;
	`
	_, err := r.db.Exec(ctx, query,
		p.URL,
		p.Depth,
		p.LocalPath,
		string(p.State),
		p.FailureReason,
		p.HTTPStatusCode,
		p.RenderTimeMS,
		p.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("save page %s: %w", p.URL, err)
	}
	return nil
}

// FindPage retrieves the record for a URL.
func (r *PageLedgerImpl) FindPage(ctx context.Context, url string) (*entity.PageRecord, error) {
	query := `
		SELECT url, depth, local_path, state, failure_reason, http_status_code, render_time_ms, captured_at
		FROM mirror_pages
		WHERE url = $1;
	`
	var p entity.PageRecord
	var state string
	err := r.db.QueryRow(ctx, query, url).Scan(
		&p.URL,
		&p.Depth,
		&p.LocalPath,
		&state,
		&p.FailureReason,
		&p.HTTPStatusCode,
		&p.RenderTimeMS,
		&p.CapturedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find page %s: %w", url, err)
	}
	p.State = entity.CrawlState(state)
	return &p, nil
}

// SaveIssues stores every issue of one report in a single transaction.
func (r *PageLedgerImpl) SaveIssues(ctx context.Context, report *entity.Report) error {
	query := `INSERT INTO mirror_issues (run_at, kind, severity, file, detail) VALUES ($1, $2, $3, $4, $5);`

	batch := &pgx.Batch{}
	for _, bucket := range [][]entity.Issue{report.Errors, report.Warnings, report.Info} {
		for _, is := range bucket {
			batch.Queue(query, report.Timestamp, string(is.Kind), string(is.Severity), is.File, is.Detail)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save issues: %w", err)
	}
	return nil
}
