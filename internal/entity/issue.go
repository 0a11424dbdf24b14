package entity

import "time"

type Severity string

const (
	SeverityError Severity = "ERROR"
	SeverityWarn  Severity = "WARN"
	SeverityInfo  Severity = "INFO"
)

type IssueKind string

const (
	IssueRemoteAsset    IssueKind = "REMOTE_ASSET"
	IssueMissingAsset   IssueKind = "MISSING_ASSET"
	IssueBrokenLink     IssueKind = "BROKEN_LINK"
	IssueAbsoluteRef    IssueKind = "ABSOLUTE_REF"
	IssueBuilderRef     IssueKind = "BUILDER_REF"
	IssueAccessibility  IssueKind = "ACCESSIBILITY"
	IssueCSSRemote      IssueKind = "CSS_REMOTE"
	IssueUnfetchedAsset IssueKind = "UNFETCHED_ASSET"
)

// Issue is one verification finding. File is relative to the output root.
type Issue struct {
	Kind     IssueKind `json:"type"`
	Severity Severity  `json:"severity"`
	File     string    `json:"file"`
	Detail   string    `json:"detail"`
}

// Report is the QA artifact written after a verification pass.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Files     int       `json:"files"`
	Errors    []Issue   `json:"errors"`
	Warnings  []Issue   `json:"warnings"`
	Info      []Issue   `json:"info"`
}

// NewReport buckets issues by severity. Buckets are never nil so the JSON
// always carries arrays.
func NewReport(at time.Time, files int, issues []Issue) *Report {
	r := &Report{
		Timestamp: at,
		Files:     files,
		Errors:    []Issue{},
		Warnings:  []Issue{},
		Info:      []Issue{},
	}
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			r.Errors = append(r.Errors, is)
		case SeverityWarn:
			r.Warnings = append(r.Warnings, is)
		default:
			r.Info = append(r.Info, is)
		}
	}
	return r
}
