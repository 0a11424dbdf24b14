package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/sitemirror/internal/entity"
)

func TestFrontier(t *testing.T) {
	f := NewFrontier(1)

	assert.True(t, f.Push("https://example.com/", 0))
	assert.False(t, f.Push("https://example.com/", 1), "already claimed")
	assert.True(t, f.Push("https://example.com/a", 1))
	assert.False(t, f.Push("https://example.com/b", 2), "beyond depth bound")
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, entity.StateUnvisited, f.State("https://example.com/b"))

	e, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/", e.URL)
	assert.Equal(t, 0, e.Depth)

	f.Mark(e.URL, entity.StateSaved)
	e, ok = f.Pop()
	require.True(t, ok)
	f.Mark(e.URL, entity.StateFailed)

	_, ok = f.Pop()
	assert.False(t, ok)
	assert.Equal(t, 1, f.Count(entity.StateSaved))
	assert.Equal(t, 1, f.Count(entity.StateFailed))
	assert.False(t, f.Push("https://example.com/a", 1), "failed URLs are not retried")
}
