// Package assets downloads remote resources into the output tree and keeps
// the per-run record of what was fetched.
package assets

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/pkg/utils"
)

const (
	// AssetsDir is the output subtree holding every downloaded resource.
	AssetsDir  = "assets"
	maxStemLen = 100
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

var kindByExt = map[string]entity.AssetKind{
	".png": entity.AssetImage, ".jpg": entity.AssetImage, ".jpeg": entity.AssetImage,
	".gif": entity.AssetImage, ".webp": entity.AssetImage, ".svg": entity.AssetImage,
	".avif": entity.AssetImage, ".ico": entity.AssetImage, ".bmp": entity.AssetImage,
	".js": entity.AssetScript, ".mjs": entity.AssetScript,
	".css": entity.AssetStyle,
	".woff": entity.AssetFont, ".woff2": entity.AssetFont, ".ttf": entity.AssetFont,
	".otf": entity.AssetFont, ".eot": entity.AssetFont,
	".mp4": entity.AssetMedia, ".webm": entity.AssetMedia, ".mov": entity.AssetMedia,
	".mp3": entity.AssetMedia, ".wav": entity.AssetMedia, ".ogg": entity.AssetMedia,
	".m4a": entity.AssetMedia,
}

// KindFromURL guesses the asset category from the URL path extension.
func KindFromURL(raw string) entity.AssetKind {
	u, err := url.Parse(raw)
	if err != nil {
		return entity.AssetOther
	}
	if k, ok := kindByExt[strings.ToLower(path.Ext(u.Path))]; ok {
		return k
	}
	return entity.AssetOther
}

// IsAssetURL reports whether raw points at a known static resource type.
func IsAssetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := kindByExt[ext]; ok {
		return true
	}
	switch ext {
	case ".pdf", ".zip", ".xml", ".json", ".txt":
		return true
	}
	return false
}

// FileName derives the on-disk name for u: diacritics removed, unsafe
// characters replaced, stem capped, ".dat" when extensionless and a short
// query hash before the extension.
func FileName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		base = "index"
	}
	base = removeDiacritics(base)

	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = unsafeChars.ReplaceAllString(stem, "_")
	ext = unsafeChars.ReplaceAllString(ext, "_")
	if len(stem) > maxStemLen {
		stem = stem[:maxStemLen]
	}
	if stem == "" {
		stem = "asset"
	}
	if ext == "" || ext == "." {
		ext = ".dat"
	}
	if u.RawQuery != "" {
		stem += "_" + utils.ShortHash(u.RawQuery)
	}
	return stem + ext
}

// LocalPath returns the output-root path for u under the kind's directory.
func LocalPath(u *url.URL, kind entity.AssetKind) string {
	if dir := kind.Dir(); dir != "" {
		return path.Join(AssetsDir, dir, FileName(u))
	}
	return path.Join(AssetsDir, FileName(u))
}

// removeDiacritics strips combining marks and recomposes to NFC.
func removeDiacritics(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// IsAssetsPath reports whether a slash-separated output-root path lies in
// the assets tree.
func IsAssetsPath(p string) bool {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	return p == AssetsDir || strings.HasPrefix(p, AssetsDir+"/")
}
