package models

import (
	"strings"
	"testing"
)

func TestTagID_CaseInsensitive(t *testing.T) {
	a := TagID("Reading")
	b := TagID("reading")
	c := TagID("  READING  ")

	if a != b || b != c {
		t.Errorf("case variants should share an id: %q %q %q", a, b, c)
	}
	if !strings.HasPrefix(a, "tg-") {
		t.Errorf("tag id should carry tg- prefix: %q", a)
	}
	if other := TagID("writing"); other == a {
		t.Errorf("different names should not collide: %q", other)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Example.COM/Path/", "https://example.com/Path"},
		{"https://example.com/page#section", "https://example.com/page"},
		{"HTTP://example.com", "http://example.com"},
		{"https://example.com/a?x=1", "https://example.com/a?x=1"},
		{"not a url/", "not a url"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPageID_Deterministic(t *testing.T) {
	a := PageID("https://example.com/article/")
	b := PageID("https://EXAMPLE.com/article")

	if a != b {
		t.Errorf("equivalent urls should share an id: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "pg-") {
		t.Errorf("page id should carry pg- prefix: %q", a)
	}
}

func TestDomain(t *testing.T) {
	if got := Domain("https://Blog.Example.com/post"); got != "blog.example.com" {
		t.Errorf("Domain = %q, want blog.example.com", got)
	}
	if got := Domain("://bad"); got != "" {
		t.Errorf("Domain of unparseable url = %q, want empty", got)
	}
}
