package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReport_Buckets(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewReport(at, 3, []Issue{
		{Kind: IssueMissingAsset, Severity: SeverityError, File: "index.html"},
		{Kind: IssueRemoteAsset, Severity: SeverityWarn, File: "index.html"},
		{Kind: IssueAccessibility, Severity: SeverityInfo, File: "about.html"},
		{Kind: IssueBrokenLink, Severity: SeverityError, File: "about.html"},
	})

	assert.Equal(t, 3, r.Files)
	assert.Len(t, r.Errors, 2)
	assert.Len(t, r.Warnings, 1)
	assert.Len(t, r.Info, 1)
}

func TestNewReport_EmptyBucketsMarshalAsArrays(t *testing.T) {
	r := NewReport(time.Unix(0, 0).UTC(), 0, nil)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"errors":[]`)
	assert.Contains(t, string(data), `"info":[]`)
}

func TestAssetKind_Dir(t *testing.T) {
	assert.Equal(t, "images", AssetImage.Dir())
	assert.Equal(t, "fonts", AssetFont.Dir())
	assert.Equal(t, "", AssetOther.Dir())
	assert.Equal(t, AssetStyle, ParseAssetKind("style"))
	assert.Equal(t, AssetOther, ParseAssetKind("document"))
}

func TestCrawlState_Terminal(t *testing.T) {
	assert.False(t, StateUnvisited.Terminal())
	assert.False(t, StateInProgress.Terminal())
	assert.True(t, StateSaved.Terminal())
	assert.True(t, StateFailed.Terminal())
}
