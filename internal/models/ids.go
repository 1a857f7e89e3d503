package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

const (
	tagIDPrefix  = "tg-"
	pageIDPrefix = "pg-"
	idHexLen     = 12 // 48 bits of the digest - enough for a personal collection
)

// NormalizeTagName canonicalizes a tag name for id derivation and
// case-insensitive uniqueness checks.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TagID derives a deterministic tag id from a normalized name, so the same
// name (in any case) always maps to the same tag.
func TagID(name string) string {
	return tagIDPrefix + digest(NormalizeTagName(name))
}

// NormalizeURL canonicalizes a URL for id derivation: fragment dropped,
// scheme/host lowercased, trailing slash stripped. Unparseable input falls
// back to trimmed lowercase so id derivation still succeeds.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSuffix(raw, "/"))
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// PageID derives a deterministic page id from a normalized URL, making
// page creation idempotent per URL.
func PageID(rawURL string) string {
	return pageIDPrefix + digest(NormalizeURL(rawURL))
}

// Domain extracts the host part of a URL for Page.Domain. Empty when the
// URL does not parse.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:idHexLen]
}
