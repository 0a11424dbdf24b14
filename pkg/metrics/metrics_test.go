package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	PagesTotal.WithLabelValues("saved", "").Inc()

	path := filepath.Join(t.TempDir(), "mirror.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mirror_pages_total")
}

func TestWriteTextfile_EmptyPath(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))
}
