package assets

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/pkg/utils"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "https://cdn.example.com/img/logo.png", want: "logo.png"},
		{name: "diacritics", raw: "https://cdn.example.com/img/caf%C3%A9-cr%C3%A8me.jpg", want: "cafe-creme.jpg"},
		{name: "unsafe chars", raw: "https://cdn.example.com/img/my%20photo(1).png", want: "my_photo_1_.png"},
		{name: "extensionless", raw: "https://cdn.example.com/font/abc123", want: "abc123.dat"},
		{name: "root path", raw: "https://cdn.example.com/", want: "index.dat"},
		{
			name: "query hash",
			raw:  "https://cdn.example.com/img/bg.png?width=800",
			want: "bg_" + utils.ShortHash("width=800") + ".png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(mustParse(t, tt.raw)))
		})
	}
}

func TestFileName_StemCapped(t *testing.T) {
	long := strings.Repeat("a", 150)
	name := FileName(mustParse(t, "https://cdn.example.com/"+long+".woff2"))
	assert.Equal(t, strings.Repeat("a", 100)+".woff2", name)
}

func TestLocalPath_KindDirectories(t *testing.T) {
	u := mustParse(t, "https://cdn.example.com/x/file.bin")
	assert.Equal(t, "assets/images/file.bin", LocalPath(u, entity.AssetImage))
	assert.Equal(t, "assets/scripts/file.bin", LocalPath(u, entity.AssetScript))
	assert.Equal(t, "assets/styles/file.bin", LocalPath(u, entity.AssetStyle))
	assert.Equal(t, "assets/fonts/file.bin", LocalPath(u, entity.AssetFont))
	assert.Equal(t, "assets/media/file.bin", LocalPath(u, entity.AssetMedia))
	assert.Equal(t, "assets/file.bin", LocalPath(u, entity.AssetOther))
}

func TestKindFromURL(t *testing.T) {
	assert.Equal(t, entity.AssetImage, KindFromURL("https://a.com/x.SVG"))
	assert.Equal(t, entity.AssetFont, KindFromURL("https://a.com/x.woff2?v=3"))
	assert.Equal(t, entity.AssetStyle, KindFromURL("/x.css"))
	assert.Equal(t, entity.AssetMedia, KindFromURL("/hero.mp4"))
	assert.Equal(t, entity.AssetOther, KindFromURL("/about"))
	assert.True(t, IsAssetURL("/brochure.pdf"))
	assert.False(t, IsAssetURL("/about"))
}
