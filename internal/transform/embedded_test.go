package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStaticHelpers(t *testing.T) {
	root := t.TempDir()
	custom := filepath.Join(root, "assets", "forms.css")
	require.NoError(t, os.MkdirAll(filepath.Dir(custom), 0o755))
	require.NoError(t, os.WriteFile(custom, []byte("/* mine */"), 0o644))

	written, err := WriteStaticHelpers(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"assets/mirror-fix.css", "assets/mirror-fix.js"}, written)

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "/* mine */", string(data))
	assert.FileExists(t, filepath.Join(root, "assets", "mirror-fix.js"))

	again, err := WriteStaticHelpers(root)
	require.NoError(t, err)
	assert.Empty(t, again)
}
