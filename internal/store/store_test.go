package store

import (
	"context"
	"errors"
	"testing"

	"github.com/ines/tagmark/internal/clock"
	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/models"
)

func newTestStore(t *testing.T) (*Store, *kv.Memory) {
	t.Helper()
	adapter := kv.NewMemory()
	s := New(adapter, clock.New(nil))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s, adapter
}

func TestCreateTag_Validation(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.CreateTag("  ", "", ""); !errors.Is(err, ErrEmptyName) {
		t.Errorf("blank name: err = %v, want ErrEmptyName", err)
	}

	tag, err := s.CreateTag("Reading", "articles to read", "#ff0000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tag.ID != models.TagID("reading") {
		t.Errorf("id = %q, want name-derived id", tag.ID)
	}
	if tag.CreatedAt == 0 || tag.UpdatedAt == 0 {
		t.Error("timestamps should be set on create")
	}

	// Duplicate detection is case-insensitive.
	if _, err := s.CreateTag("READING", "", ""); !errors.Is(err, ErrTagExists) {
		t.Errorf("duplicate: err = %v, want ErrTagExists", err)
	}
}

func TestCreateTag_RevivesTombstone(t *testing.T) {
	s, _ := newTestStore(t)

	tag, err := s.CreateTag("go", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteTag(tag.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	revived, err := s.CreateTag("go", "round two", "")
	if err != nil {
		t.Fatalf("recreate over tombstone: %v", err)
	}
	if revived.ID != tag.ID {
		t.Errorf("revived id = %q, want original %q", revived.ID, tag.ID)
	}
	if revived.Deleted {
		t.Error("revived tag should not be a tombstone")
	}
	if revived.Description != "round two" {
		t.Errorf("description = %q, want fresh content", revived.Description)
	}
}

func TestUpdateTagName(t *testing.T) {
	s, _ := newTestStore(t)

	a, _ := s.CreateTag("alpha", "", "")
	s.CreateTag("beta", "", "")

	renamed, err := s.UpdateTagName(a.ID, "Alpha Prime")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.ID != a.ID {
		t.Error("rename must not change the id")
	}
	if renamed.Name != "Alpha Prime" {
		t.Errorf("name = %q, want Alpha Prime", renamed.Name)
	}

	// Collision with another live tag, any case.
	if _, err := s.UpdateTagName(a.ID, "BETA"); !errors.Is(err, ErrTagExists) {
		t.Errorf("rename onto existing: err = %v, want ErrTagExists", err)
	}
	if _, err := s.UpdateTagName("tg-missing", "x"); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("rename missing: err = %v, want ErrTagNotFound", err)
	}
}

func TestBindTags_Symmetry(t *testing.T) {
	s, _ := newTestStore(t)

	a, _ := s.CreateTag("a", "", "")
	b, _ := s.CreateTag("b", "", "")

	if err := s.BindTags(a.ID, a.ID); !errors.Is(err, ErrSelfBinding) {
		t.Errorf("self binding: err = %v, want ErrSelfBinding", err)
	}
	if err := s.BindTags(a.ID, b.ID); err != nil {
		t.Fatalf("bind: %v", err)
	}
	// Binding twice is a no-op, not a duplicate.
	if err := s.BindTags(a.ID, b.ID); err != nil {
		t.Fatalf("rebind: %v", err)
	}

	ta, _ := s.TagByID(a.ID)
	tb, _ := s.TagByID(b.ID)
	if len(ta.Bindings) != 1 || ta.Bindings[0] != b.ID {
		t.Errorf("a.Bindings = %v, want [%s]", ta.Bindings, b.ID)
	}
	if len(tb.Bindings) != 1 || tb.Bindings[0] != a.ID {
		t.Errorf("b.Bindings = %v, want [%s]", tb.Bindings, a.ID)
	}

	if err := s.UnbindTags(a.ID, b.ID); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	ta, _ = s.TagByID(a.ID)
	tb, _ = s.TagByID(b.ID)
	if len(ta.Bindings) != 0 || len(tb.Bindings) != 0 {
		t.Errorf("bindings after unbind = %v / %v, want empty", ta.Bindings, tb.Bindings)
	}
}

func TestDeleteTag_Cascades(t *testing.T) {
	s, _ := newTestStore(t)

	a, _ := s.CreateTag("doomed", "", "")
	b, _ := s.CreateTag("survivor", "", "")
	if err := s.BindTags(a.ID, b.ID); err != nil {
		t.Fatalf("bind: %v", err)
	}
	p, _ := s.CreateOrUpdatePage("https://example.com", "Example", "", "")
	if err := s.AddTagToPage(p.ID, a.ID); err != nil {
		t.Fatalf("add tag: %v", err)
	}
	if err := s.AddTagToPage(p.ID, b.ID); err != nil {
		t.Fatalf("add tag: %v", err)
	}

	if err := s.DeleteTag(a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Gone from the live view, kept as tombstone for sync.
	if _, ok := s.TagByID(a.ID); ok {
		t.Error("deleted tag should not be live")
	}
	ghost, ok := s.TagAny(a.ID)
	if !ok || !ghost.Deleted {
		t.Error("deleted tag should survive as a tombstone")
	}

	// Stripped from the page.
	page, _ := s.PageByID(p.ID)
	if containsString(page.Tags, a.ID) {
		t.Error("page still references the deleted tag")
	}
	if !containsString(page.Tags, b.ID) {
		t.Error("other tags on the page must remain")
	}

	// Stripped from the peer's bindings.
	peer, _ := s.TagByID(b.ID)
	if containsString(peer.Bindings, a.ID) {
		t.Error("peer bindings still reference the deleted tag")
	}

	if err := s.DeleteTag(a.ID); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("double delete: err = %v, want ErrTagNotFound", err)
	}
}

func TestCreateOrUpdatePage_IdempotentPerURL(t *testing.T) {
	s, _ := newTestStore(t)

	p1, err := s.CreateOrUpdatePage("https://example.com/a/", "First", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// URL variants collapse to one page; empty fields keep existing values.
	p2, err := s.CreateOrUpdatePage("https://EXAMPLE.com/a", "", "icon.png", "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p1.ID != p2.ID {
		t.Fatalf("url variants produced two pages: %q vs %q", p1.ID, p2.ID)
	}
	if p2.Title != "First" {
		t.Errorf("title = %q, empty update should keep existing", p2.Title)
	}
	if p2.Favicon != "icon.png" {
		t.Errorf("favicon = %q, want icon.png", p2.Favicon)
	}

	if _, err := s.CreateOrUpdatePage("  ", "", "", ""); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("blank url: err = %v, want ErrEmptyURL", err)
	}
}

func TestRemoveTagFromPage_LastTagTombstones(t *testing.T) {
	s, _ := newTestStore(t)

	tag, _ := s.CreateTag("only", "", "")
	p, _ := s.CreateOrUpdatePage("https://example.com", "", "", "")
	if err := s.AddTagToPage(p.ID, tag.ID); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.RemoveTagFromPage(p.ID, tag.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s.PageByID(p.ID); ok {
		t.Error("untagged page should drop out of the live view")
	}
	ghost, ok := s.PageAny(p.ID)
	if !ok || !ghost.Deleted {
		t.Error("untagged page should become a tombstone")
	}

	// Re-tagging the same URL revives it.
	revived, err := s.CreateOrUpdatePage("https://example.com", "", "", "")
	if err != nil {
		t.Fatalf("revive: %v", err)
	}
	if revived.Deleted {
		t.Error("re-created page should be live again")
	}
}

func TestCreateTagAndAddToPage_ReusesCaseVariant(t *testing.T) {
	s, _ := newTestStore(t)

	existing, _ := s.CreateTag("Golang", "", "")
	p, _ := s.CreateOrUpdatePage("https://go.dev", "Go", "", "")

	got, err := s.CreateTagAndAddToPage("golang", p.ID)
	if err != nil {
		t.Fatalf("create-and-add: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("resolved id = %q, want existing %q", got.ID, existing.ID)
	}
	if len(s.Tags()) != 1 {
		t.Errorf("have %d tags, want 1 (no case-variant duplicate)", len(s.Tags()))
	}

	page, _ := s.PageByID(p.ID)
	if !containsString(page.Tags, existing.ID) {
		t.Error("page should reference the reused tag")
	}

	// Unknown name creates on the fly.
	fresh, err := s.CreateTagAndAddToPage("new-tag", p.ID)
	if err != nil {
		t.Fatalf("create-and-add fresh: %v", err)
	}
	if _, ok := s.TagByID(fresh.ID); !ok {
		t.Error("fresh tag should be live in the store")
	}
}

func TestCommit_OnlyWhenDirty(t *testing.T) {
	s, adapter := newTestStore(t)
	ctx := context.Background()

	if s.Dirty() {
		t.Fatal("fresh store should be clean")
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("clean commit: %v", err)
	}
	var tags []models.Tag
	if found, _ := adapter.Get(ctx, kv.KeyTags, &tags); found {
		t.Error("clean commit should not write anything")
	}

	s.CreateTag("dirty", "", "")
	if !s.Dirty() {
		t.Fatal("mutation should mark the store dirty")
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if s.Dirty() {
		t.Error("commit should clear the dirty flag")
	}
	if found, _ := adapter.Get(ctx, kv.KeyTags, &tags); !found || len(tags) != 1 {
		t.Errorf("persisted tags = %v (found=%v), want one entry", tags, found)
	}
}

func TestInitialize_FirstCallWins(t *testing.T) {
	s := New(kv.NewMemory(), clock.New(nil))

	s.Initialize([]models.Tag{{ID: "tg-1", Name: "one"}}, nil)
	s.Initialize([]models.Tag{{ID: "tg-2", Name: "two"}}, nil)

	if _, ok := s.TagByID("tg-1"); !ok {
		t.Error("first initialization should stick")
	}
	if _, ok := s.TagByID("tg-2"); ok {
		t.Error("second initialization should be ignored")
	}
	if s.Dirty() {
		t.Error("initialization must not mark the store dirty")
	}
}

func TestSubscribe_NotifiesOnMutation(t *testing.T) {
	s, _ := newTestStore(t)

	var calls int
	unsub := s.Subscribe(func() { calls++ })

	s.CreateTag("a", "", "")
	if calls != 1 {
		t.Errorf("calls after create = %d, want 1", calls)
	}

	s.UpdateData([]models.Tag{{ID: "tg-x", Name: "x"}}, nil)
	if calls != 2 {
		t.Errorf("calls after UpdateData = %d, want 2", calls)
	}

	unsub()
	s.CreateTag("b", "", "")
	if calls != 2 {
		t.Errorf("calls after unsubscribe = %d, want 2", calls)
	}
}

func TestLiveTagIDs_FiltersDanglingRefs(t *testing.T) {
	s, _ := newTestStore(t)

	tag, _ := s.CreateTag("live", "", "")
	p := models.Page{ID: "pg-1", URL: "https://x.test", Tags: []string{tag.ID, "tg-dangling"}}
	s.ApplyRemotePage(p)

	got := s.LiveTagIDs(p)
	if len(got) != 1 || got[0] != tag.ID {
		t.Errorf("LiveTagIDs = %v, want [%s]", got, tag.ID)
	}
}

func TestPagesWithTag(t *testing.T) {
	s, _ := newTestStore(t)

	tag, _ := s.CreateTag("shared", "", "")
	p1, _ := s.CreateOrUpdatePage("https://b.test", "", "", "")
	p2, _ := s.CreateOrUpdatePage("https://a.test", "", "", "")
	s.CreateOrUpdatePage("https://c.test", "", "", "")
	s.AddTagToPage(p1.ID, tag.ID)
	s.AddTagToPage(p2.ID, tag.ID)

	got := s.PagesWithTag(tag.ID)
	if len(got) != 2 {
		t.Fatalf("got %d pages, want 2", len(got))
	}
	// Sorted by URL.
	if got[0].URL != "https://a.test" || got[1].URL != "https://b.test" {
		t.Errorf("order = [%s %s], want url-sorted", got[0].URL, got[1].URL)
	}
}

func TestWipe(t *testing.T) {
	s, adapter := newTestStore(t)
	ctx := context.Background()

	s.CreateTag("gone", "", "")
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Wipe(ctx); err != nil {
		t.Fatalf("wipe: %v", err)
	}

	if len(s.AllTags()) != 0 {
		t.Error("wipe should clear in-memory tags")
	}
	var tags []models.Tag
	if found, _ := adapter.Get(ctx, kv.KeyTags, &tags); found {
		t.Error("wipe should remove the persisted collections")
	}
}
