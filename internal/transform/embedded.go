package transform

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// StaticHelpers maps output-root paths to the embedded helper files that
// injected references point at.
var StaticHelpers = map[string]string{
	"assets/mirror-fix.css": "static/mirror-fix.css",
	"assets/mirror-fix.js":  "static/mirror-fix.js",
	"assets/forms.css":      "static/forms.css",
}

// LoadTemplate returns the markup of a builtin template ("contact",
// "booking", "ack") or, failing that, of the file at nameOrPath.
func LoadTemplate(nameOrPath string) (string, error) {
	data, err := templateFS.ReadFile(path.Join("templates", nameOrPath+".html"))
	if err == nil {
		return string(data), nil
	}
	data, err = os.ReadFile(nameOrPath)
	if err != nil {
		return "", fmt.Errorf("load template %q: %w", nameOrPath, err)
	}
	return string(data), nil
}

// AckMarkup is the builtin acknowledgment block for the success document.
func AckMarkup() string {
	data, _ := templateFS.ReadFile("templates/ack.html")
	return string(data)
}

// WriteStaticHelpers writes each embedded helper below root unless a file
// already exists there. It returns the output-root paths it wrote.
func WriteStaticHelpers(root string) ([]string, error) {
	var written []string
	for dst, src := range StaticHelpers {
		full := filepath.Join(root, filepath.FromSlash(dst))
		if _, err := os.Stat(full); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return written, fmt.Errorf("stat %s: %w", full, err)
		}
		data, err := staticFS.ReadFile(src)
		if err != nil {
			return written, fmt.Errorf("read embedded %s: %w", src, err)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return written, fmt.Errorf("create dir for %s: %w", full, err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", full, err)
		}
		written = append(written, dst)
	}
	return written, nil
}
