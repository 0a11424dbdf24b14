package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// HashURL creates a SHA256 hash of a URL string.
// Used to build fixed-length keys for Redis.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ShortHash returns the first 8 hex characters of the SHA256 of s.
func ShortHash(s string) string {
	return HashURL(s)[:8]
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}
