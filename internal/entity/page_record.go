package entity

import "time"

// PageRecord mirrors the `mirror_pages` PostgreSQL table schema.
// Markup is kept in memory only and never persisted to the ledger.
type PageRecord struct {
	URL            string
	Markup         string
	Depth          int
	LocalPath      string
	State          CrawlState
	FailureReason  string
	HTTPStatusCode int
	RenderTimeMS   int
	CapturedAt     time.Time
}

// RenderedPage is what a renderer hands back after one navigation.
type RenderedPage struct {
	URL        string
	StatusCode int
	HTML       string
	Duration   time.Duration
}
