package entity

import "time"

// CrawlState is the lifecycle of one URL within a run.
type CrawlState string

const (
	StateUnvisited  CrawlState = "unvisited"
	StateInProgress CrawlState = "in_progress"
	StateSaved      CrawlState = "saved"
	StateFailed     CrawlState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s CrawlState) Terminal() bool {
	return s == StateSaved || s == StateFailed
}

type CrawlStatus struct {
	URL           string
	State         CrawlState
	Depth         int
	UpdatedAt     time.Time
	FailureReason string
}
