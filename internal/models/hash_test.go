package models

import "testing"

func TestContentHash_IgnoresTimestamps(t *testing.T) {
	a := Tag{ID: "tg-1", Name: "go", UpdatedAt: 100, CreatedAt: 100}
	b := Tag{ID: "tg-1", Name: "go", UpdatedAt: 999, CreatedAt: 5}

	if a.ContentHash() != b.ContentHash() {
		t.Error("hash should be stable across timestamp changes")
	}
}

func TestContentHash_IgnoresBindingOrder(t *testing.T) {
	a := Tag{ID: "tg-1", Name: "go", Bindings: []string{"tg-2", "tg-3"}}
	b := Tag{ID: "tg-1", Name: "go", Bindings: []string{"tg-3", "tg-2"}}

	if a.ContentHash() != b.ContentHash() {
		t.Error("binding order should not register as an edit")
	}
}

func TestContentHash_DetectsEdits(t *testing.T) {
	base := Page{ID: "pg-1", URL: "https://example.com", Title: "Home", Tags: []string{"tg-1"}}

	edited := base
	edited.Title = "Homepage"
	if base.ContentHash() == edited.ContentHash() {
		t.Error("title edit should change the hash")
	}

	tombstoned := base
	tombstoned.Deleted = true
	if base.ContentHash() == tombstoned.ContentHash() {
		t.Error("tombstoning should change the hash")
	}
}
