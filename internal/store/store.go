// Package store holds the in-memory authoritative copy of tags and pages
// for the running process, with a dirty/commit protocol so many in-process
// mutations inside one logical transaction cost exactly one durable write.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ines/tagmark/internal/clock"
	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/models"
)

// Validation errors. These surface synchronously to the caller and are
// never queued.
var (
	ErrEmptyName    = errors.New("tag name must not be empty")
	ErrEmptyURL     = errors.New("page url must not be empty")
	ErrTagExists    = errors.New("tag already exists")
	ErrTagNotFound  = errors.New("tag not found")
	ErrPageNotFound = errors.New("page not found")
	ErrSelfBinding  = errors.New("cannot bind a tag to itself")
)

// Listener is notified synchronously after every mutation and after
// UpdateData. Notification happens in the same tick as the mutation.
type Listener func()

// Store is the local mutable store. Collections are mutated only through
// Store methods (single-writer discipline); concurrent logical callers are
// serialized by the mutex.
type Store struct {
	kv    kv.Adapter
	clock *clock.Service

	mu          sync.Mutex
	tags        map[string]models.Tag
	pages       map[string]models.Page
	dirty       bool
	initialized bool

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextID     int
}

// New creates an empty store backed by the given persistence adapter.
func New(adapter kv.Adapter, clk *clock.Service) *Store {
	return &Store{
		kv:        adapter,
		clock:     clk,
		tags:      make(map[string]models.Tag),
		pages:     make(map[string]models.Page),
		listeners: make(map[int]Listener),
	}
}

// Load reads the persisted collections and initializes the store with them.
// Missing keys are treated as empty collections.
func (s *Store) Load(ctx context.Context) error {
	var tags []models.Tag
	if _, err := s.kv.Get(ctx, kv.KeyTags, &tags); err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	var pages []models.Page
	if _, err := s.kv.Get(ctx, kv.KeyPages, &pages); err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	s.Initialize(tags, pages)
	return nil
}

// Initialize seeds the collections. Idempotent: only the first call takes
// effect, guarding against duplicate boot races. Does not mark dirty and
// does not notify.
func (s *Store) Initialize(tags []models.Tag, pages []models.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return
	}
	s.initialized = true
	for _, t := range tags {
		s.tags[t.ID] = t
	}
	for _, p := range pages {
		s.pages[p.ID] = p
	}
}

// UpdateData force-overwrites both collections. Used by the sync engine
// after a merge. Marks the store dirty and notifies listeners.
func (s *Store) UpdateData(tags []models.Tag, pages []models.Page) {
	s.mu.Lock()
	s.tags = make(map[string]models.Tag, len(tags))
	for _, t := range tags {
		s.tags[t.ID] = t
	}
	s.pages = make(map[string]models.Page, len(pages))
	for _, p := range pages {
		s.pages[p.ID] = p
	}
	s.initialized = true
	s.dirty = true
	s.mu.Unlock()
	s.notify()
}

// Commit persists both collections through the adapter. No-op unless dirty.
// Once Commit returns the merged state is durable; a crash before it leaves
// the previously persisted state intact.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	tags := s.tagSliceLocked(true)
	pages := s.pageSliceLocked(true)
	s.mu.Unlock()

	if err := s.kv.SetMultiple(ctx, map[string]any{
		kv.KeyTags:  tags,
		kv.KeyPages: pages,
	}); err != nil {
		return fmt.Errorf("commit store: %w", err)
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Dirty reports whether there are uncommitted mutations.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Wipe clears the in-memory collections and their persisted copies. Used at
// the identity-switch boundary.
func (s *Store) Wipe(ctx context.Context) error {
	s.mu.Lock()
	s.tags = make(map[string]models.Tag)
	s.pages = make(map[string]models.Page)
	s.dirty = false
	s.initialized = false
	s.mu.Unlock()
	if err := s.kv.RemoveMultiple(ctx, []string{kv.KeyTags, kv.KeyPages}); err != nil {
		return fmt.Errorf("wipe store: %w", err)
	}
	s.notify()
	return nil
}

// Subscribe registers a listener and returns its unsubscribe func.
func (s *Store) Subscribe(fn Listener) func() {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenerMu.Unlock()
	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *Store) notify() {
	s.listenerMu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// --- Read API ---

// Tags returns all live (non-tombstone) tags sorted by name.
func (s *Store) Tags() []models.Tag {
	s.mu.Lock()
	out := s.tagSliceLocked(false)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllTags returns every tag including tombstones, for the sync engine.
func (s *Store) AllTags() []models.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tagSliceLocked(true)
}

// Pages returns all live pages sorted by URL.
func (s *Store) Pages() []models.Page {
	s.mu.Lock()
	out := s.pageSliceLocked(false)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// AllPages returns every page including tombstones, for the sync engine.
func (s *Store) AllPages() []models.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageSliceLocked(true)
}

// TagByID returns a live tag by id.
func (s *Store) TagByID(id string) (models.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	if !ok || t.Deleted {
		return models.Tag{}, false
	}
	return t, true
}

// TagAny returns a tag by id whether or not it is tombstoned. Used by the
// sync layer, which needs to compare against tombstones.
func (s *Store) TagAny(id string) (models.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	return t, ok
}

// PageAny returns a page by id whether or not it is tombstoned.
func (s *Store) PageAny(id string) (models.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	return p, ok
}

// TagByName looks a live tag up by case-insensitive name.
func (s *Store) TagByName(name string) (models.Tag, bool) {
	norm := models.NormalizeTagName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if !t.Deleted && models.NormalizeTagName(t.Name) == norm {
			return t, true
		}
	}
	return models.Tag{}, false
}

// PageByURL returns a live page by its normalized URL.
func (s *Store) PageByURL(rawURL string) (models.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[models.PageID(rawURL)]
	if !ok || p.Deleted {
		return models.Page{}, false
	}
	return p, true
}

// PageByID returns a live page by id.
func (s *Store) PageByID(id string) (models.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if !ok || p.Deleted {
		return models.Page{}, false
	}
	return p, true
}

// PagesWithTag returns live pages carrying the given tag id, sorted by URL.
// Dangling tag references on other pages are simply not matched; they are
// filtered at read time, never repaired on write.
func (s *Store) PagesWithTag(tagID string) []models.Page {
	s.mu.Lock()
	var out []models.Page
	for _, p := range s.pages {
		if p.Deleted {
			continue
		}
		for _, id := range p.Tags {
			if id == tagID {
				out = append(out, p)
				break
			}
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// LiveTagIDs filters a page's tag list down to ids that resolve to live
// tags. This is the read-time guard against dangling references.
func (s *Store) LiveTagIDs(p models.Page) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range p.Tags {
		if t, ok := s.tags[id]; ok && !t.Deleted {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) tagSliceLocked(includeDeleted bool) []models.Tag {
	out := make([]models.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		if includeDeleted || !t.Deleted {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) pageSliceLocked(includeDeleted bool) []models.Page {
	out := make([]models.Page, 0, len(s.pages))
	for _, p := range s.pages {
		if includeDeleted || !p.Deleted {
			out = append(out, p)
		}
	}
	return out
}

// --- Helpers shared by mutations ---

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
