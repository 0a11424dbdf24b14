package linkrewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRewriter() *Rewriter {
	return New("example-site.com", []string{"example-site.builder.app"})
}

func TestRewrite_Internal(t *testing.T) {
	r := newTestRewriter()

	tests := []struct {
		href string
		want string
	}{
		{"https://www.example-site.com/about/", "about.html"},
		{"/", "index.html"},
		{"https://example-site.com", "index.html"},
		{"http://www.example-site.com/", "index.html"},
		{"//example-site.com/contact", "contact.html"},
		{"/blog/post-1", "blog/post-1.html"},
		{"/blog/post-1/", "blog/post-1.html"},
		{"/services#pricing", "services.html#pricing"},
		{"/pricing?plan=pro", "pricing.html"},
		{"/docs/guide.pdf", "docs/guide.pdf"},
		{"/index.html", "index.html"},
		{"https://example-site.builder.app/team", "team.html"},
		{"HTTPS://WWW.EXAMPLE-SITE.COM/About", "About.html"},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := r.Rewrite(tt.href)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.Contains(got, "://"), "no scheme or host in %q", got)
		})
	}
}

func TestRewrite_NotInternal(t *testing.T) {
	r := newTestRewriter()

	for _, href := range []string{
		"",
		"#top",
		"mailto:hello@example-site.com",
		"tel:+15550100",
		"sms:+15550100",
		"javascript:void(0)",
		"data:image/png;base64,AAAA",
		"https://twitter.com/example",
		"//cdn.other.com/a.js",
		"about.html",
		"../index.html",
		"assets/images/logo.png",
	} {
		t.Run(href, func(t *testing.T) {
			_, ok := r.Rewrite(href)
			assert.False(t, ok)
		})
	}
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "index.html", LocalPath("https://example-site.com/"))
	assert.Equal(t, "index.html", LocalPath("https://example-site.com"))
	assert.Equal(t, "about.html", LocalPath("https://example-site.com/about/"))
	assert.Equal(t, "blog/a.html", LocalPath("https://example-site.com/blog/a"))
	assert.Equal(t, "blog/a.html", LocalPath("https://example-site.com/blog/a?x=1"))
}

func TestRelativeTo(t *testing.T) {
	tests := []struct {
		doc, target, want string
	}{
		{"index.html", "about.html", "about.html"},
		{"blog/post.html", "about.html", "../about.html"},
		{"blog/post.html", "blog/other.html#top", "other.html#top"},
		{"a/b/c.html", "assets/images/x.png", "../../assets/images/x.png"},
	}
	for _, tt := range tests {
		t.Run(tt.doc+"->"+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeTo(tt.doc, tt.target))
		})
	}
}

func TestHosts(t *testing.T) {
	r := newTestRewriter()
	assert.True(t, r.IsSiteHost("www.example-site.com"))
	assert.True(t, r.IsSiteHost("example-site.com"))
	assert.False(t, r.IsSiteHost("example-site.builder.app"))
	assert.True(t, r.IsPreviewHost("example-site.builder.app"))
	assert.True(t, r.IsOriginURL("https://example-site.com/x"))
	assert.False(t, r.IsOriginURL("/x"))
	assert.False(t, r.IsOriginURL("ftp://example-site.com/x"))
}
