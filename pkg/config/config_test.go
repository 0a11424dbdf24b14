package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mirror.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, "dist", cfg.OutputDir)
	assert.Equal(t, 60*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 3*time.Second, cfg.HydrationDelay)
	assert.Equal(t, []string{"assets/mirror-fix.css"}, cfg.InjectStylesheets)
	require.Len(t, cfg.Forms, 2)
	assert.Equal(t, "contact.html", cfg.Forms[0].Document)
	assert.Equal(t, "contact", cfg.Forms[0].Template)
}

func TestLoad_FileOverridesAndDerivedDomain(t *testing.T) {
	path := writeConfig(t, `
start_url: https://www.example-site.com/
preview_domains: [preview.builder.app]
max_depth: 2
hydration_delay: 500ms
forms:
  - document: contact.html
    keyword: Write to us
    template: contact
`)
	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "example-site.com", cfg.SiteDomain)
	assert.Equal(t, []string{"preview.builder.app"}, cfg.PreviewDomains)
	assert.Equal(t, 2, cfg.MaxDepth)
	assert.Equal(t, 500*time.Millisecond, cfg.HydrationDelay)
	require.Len(t, cfg.Forms, 1)
	assert.Equal(t, "Write to us", cfg.Forms[0].Keyword)
	assert.NoError(t, cfg.RequireStartURL())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MIRROR_MAX_DEPTH", "1")
	t.Setenv("MIRROR_OUTPUT_DIR", "out")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxDepth)
	assert.Equal(t, "out", cfg.OutputDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "negative depth", body: "max_depth: -1\n"},
		{name: "short timeout", body: "navigation_timeout: 10ms\n"},
		{name: "form without template", body: "forms:\n  - document: contact.html\n"},
		{name: "bad jpeg quality", body: "jpeg_quality: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(NewViper(), writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRequireStartURL(t *testing.T) {
	assert.Error(t, (&Config{}).RequireStartURL())
	assert.Error(t, (&Config{StartURL: "ftp://example.com"}).RequireStartURL())
	assert.NoError(t, (&Config{StartURL: "https://example.com"}).RequireStartURL())
}
