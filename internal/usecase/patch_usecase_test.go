package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/linkrewrite"
	"github.com/user/sitemirror/internal/transform"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}
}

func TestPatch(t *testing.T) {
	root := t.TempDir()
	patched := `<!DOCTYPE html><html><head><link rel="stylesheet" href="assets/mirror-fix.css"/></head>` +
		`<body><a href="index.html">Home</a></body></html>`
	files := map[string]string{
		"index.html":            `<html><head></head><body><a href="https://example-site.com/about/">About</a></body></html>`,
		"about.html":            patched,
		"robots.txt":            "User-agent: *\n",
		"assets/scripts/x.html": `<a href="https://example-site.com/">untouched</a>`,
	}
	writeTree(t, root, files)

	tr := transform.New(transform.Options{
		Rewriter:    linkrewrite.New("example-site.com", nil),
		Stylesheets: []string{"assets/mirror-fix.css"},
	}, zap.NewNop())
	uc := NewPatchUseCase(tr, "", "", zap.NewNop())

	res, err := uc.Patch(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 1, res.Changed)
	assert.Len(t, res.HelpersWritten, len(transform.StaticHelpers))

	index, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `href="about.html"`)
	assert.Contains(t, string(index), `href="assets/mirror-fix.css"`)

	for _, name := range []string{"about.html", "robots.txt", "assets/scripts/x.html"} {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, files[name], string(got), name)
	}

	again, err := uc.Patch(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Changed)
	assert.Empty(t, again.HelpersWritten)
}

func TestPatch_MissingRoot(t *testing.T) {
	tr := transform.New(transform.Options{Rewriter: linkrewrite.New("example-site.com", nil)}, zap.NewNop())
	_, err := NewPatchUseCase(tr, "", "", zap.NewNop()).Patch(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
