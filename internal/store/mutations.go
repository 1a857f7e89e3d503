package store

import (
	"fmt"
	"strings"

	"github.com/ines/tagmark/internal/models"
)

// CreateTag creates a tag with a name-derived deterministic id. Creating a
// name that already exists (any case) fails; creating over a tombstone
// revives it with fresh content.
func (s *Store) CreateTag(name, description, color string) (models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Tag{}, ErrEmptyName
	}
	id := models.TagID(name)
	now := s.clock.Now()

	s.mu.Lock()
	if existing, ok := s.tags[id]; ok && !existing.Deleted {
		s.mu.Unlock()
		return models.Tag{}, fmt.Errorf("%w: %s", ErrTagExists, existing.Name)
	}
	t := models.Tag{
		ID:          id,
		Name:        name,
		Description: description,
		Color:       color,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tags[id] = t
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return t, nil
}

// UpdateTagName renames a tag. The id stays creation-derived; only the
// display name changes. Case-insensitive uniqueness is enforced against
// every other live tag.
func (s *Store) UpdateTagName(id, name string) (models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Tag{}, ErrEmptyName
	}
	norm := models.NormalizeTagName(name)

	s.mu.Lock()
	t, ok := s.tags[id]
	if !ok || t.Deleted {
		s.mu.Unlock()
		return models.Tag{}, fmt.Errorf("%w: %s", ErrTagNotFound, id)
	}
	for _, other := range s.tags {
		if other.ID != id && !other.Deleted && models.NormalizeTagName(other.Name) == norm {
			s.mu.Unlock()
			return models.Tag{}, fmt.Errorf("%w: %s", ErrTagExists, other.Name)
		}
	}
	t.Name = name
	t.UpdatedAt = s.clock.Now()
	s.tags[id] = t
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return t, nil
}

// BindTags links two tags symmetrically: after it returns, each tag lists
// the other in its bindings.
func (s *Store) BindTags(a, b string) error {
	if a == b {
		return ErrSelfBinding
	}
	now := s.clock.Now()

	s.mu.Lock()
	ta, okA := s.tags[a]
	tb, okB := s.tags[b]
	if !okA || ta.Deleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTagNotFound, a)
	}
	if !okB || tb.Deleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTagNotFound, b)
	}
	changed := false
	if !containsString(ta.Bindings, b) {
		ta.Bindings = append(ta.Bindings, b)
		ta.UpdatedAt = now
		s.tags[a] = ta
		changed = true
	}
	if !containsString(tb.Bindings, a) {
		tb.Bindings = append(tb.Bindings, a)
		tb.UpdatedAt = now
		s.tags[b] = tb
		changed = true
	}
	if changed {
		s.dirty = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return nil
}

// UnbindTags removes the symmetric link between two tags.
func (s *Store) UnbindTags(a, b string) error {
	now := s.clock.Now()

	s.mu.Lock()
	changed := false
	if ta, ok := s.tags[a]; ok && containsString(ta.Bindings, b) {
		ta.Bindings = removeString(ta.Bindings, b)
		ta.UpdatedAt = now
		s.tags[a] = ta
		changed = true
	}
	if tb, ok := s.tags[b]; ok && containsString(tb.Bindings, a) {
		tb.Bindings = removeString(tb.Bindings, a)
		tb.UpdatedAt = now
		s.tags[b] = tb
		changed = true
	}
	if changed {
		s.dirty = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return nil
}

// CreateOrUpdatePage creates a page keyed by its URL-derived id, or updates
// the existing one. Idempotent per URL. Empty optional fields leave the
// existing values alone.
func (s *Store) CreateOrUpdatePage(rawURL, title, favicon, description string) (models.Page, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return models.Page{}, ErrEmptyURL
	}
	id := models.PageID(rawURL)
	now := s.clock.Now()

	s.mu.Lock()
	p, ok := s.pages[id]
	if !ok {
		p = models.Page{
			ID:        id,
			URL:       models.NormalizeURL(rawURL),
			Domain:    models.Domain(rawURL),
			CreatedAt: now,
		}
	}
	p.Deleted = false // re-tagging a deleted page revives it
	if title != "" {
		p.Title = title
	}
	if favicon != "" {
		p.Favicon = favicon
	}
	if description != "" {
		p.Description = description
	}
	p.UpdatedAt = now
	s.pages[id] = p
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return p, nil
}

// AddTagToPage attaches a tag id to a page. Adding a tag twice is a no-op.
func (s *Store) AddTagToPage(pageID, tagID string) error {
	now := s.clock.Now()

	s.mu.Lock()
	p, ok := s.pages[pageID]
	if !ok || p.Deleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	if t, ok := s.tags[tagID]; !ok || t.Deleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTagNotFound, tagID)
	}
	if containsString(p.Tags, tagID) {
		s.mu.Unlock()
		return nil
	}
	p.Tags = append(p.Tags, tagID)
	p.UpdatedAt = now
	s.pages[pageID] = p
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return nil
}

// RemoveTagFromPage detaches a tag id from a page. A page left with no tags
// becomes a tombstone: an untagged page has no reason to stay in the
// collection but the deletion must still propagate.
func (s *Store) RemoveTagFromPage(pageID, tagID string) error {
	now := s.clock.Now()

	s.mu.Lock()
	p, ok := s.pages[pageID]
	if !ok || p.Deleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	if !containsString(p.Tags, tagID) {
		s.mu.Unlock()
		return nil
	}
	p.Tags = removeString(p.Tags, tagID)
	if len(p.Tags) == 0 {
		p.Deleted = true
	}
	p.UpdatedAt = now
	s.pages[pageID] = p
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return nil
}

// UpdatePageTitle sets a page's title.
func (s *Store) UpdatePageTitle(pageID, title string) error {
	now := s.clock.Now()

	s.mu.Lock()
	p, ok := s.pages[pageID]
	if !ok || p.Deleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	p.Title = title
	p.UpdatedAt = now
	s.pages[pageID] = p
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return nil
}

// CreateTagAndAddToPage resolves a tag by case-insensitive name, reusing
// an existing tag rather than creating a duplicate, and attaches it to the
// page. This lookup is the system's only deduplication guarantee: no
// case-variant duplicate can be created through this path.
func (s *Store) CreateTagAndAddToPage(name, pageID string) (models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Tag{}, ErrEmptyName
	}
	norm := models.NormalizeTagName(name)
	now := s.clock.Now()

	s.mu.Lock()
	p, ok := s.pages[pageID]
	if !ok || p.Deleted {
		s.mu.Unlock()
		return models.Tag{}, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}

	var tag models.Tag
	found := false
	for _, t := range s.tags {
		if !t.Deleted && models.NormalizeTagName(t.Name) == norm {
			tag = t
			found = true
			break
		}
	}
	if !found {
		tag = models.Tag{
			ID:        models.TagID(name),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.tags[tag.ID] = tag
	}

	if !containsString(p.Tags, tag.ID) {
		p.Tags = append(p.Tags, tag.ID)
		p.UpdatedAt = now
		s.pages[pageID] = p
	}
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return tag, nil
}

// DeleteTag tombstones a tag and cascades: the id is removed from every
// page's tag list and from every other tag's bindings (restoring symmetry).
// All three steps happen under one lock, one dirty-mark, one notification.
func (s *Store) DeleteTag(id string) error {
	now := s.clock.Now()

	s.mu.Lock()
	t, ok := s.tags[id]
	if !ok || t.Deleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTagNotFound, id)
	}

	for pid, p := range s.pages {
		if containsString(p.Tags, id) {
			p.Tags = removeString(p.Tags, id)
			p.UpdatedAt = now
			s.pages[pid] = p
		}
	}
	for tid, other := range s.tags {
		if tid != id && containsString(other.Bindings, id) {
			other.Bindings = removeString(other.Bindings, id)
			other.UpdatedAt = now
			s.tags[tid] = other
		}
	}
	t.Deleted = true
	t.Bindings = nil
	t.UpdatedAt = now
	s.tags[id] = t
	s.dirty = true
	s.mu.Unlock()
	s.notify()
	return nil
}

// ApplyRemoteTag upserts a tag arriving from the sync layer without going
// through validation or the outbox. Marks dirty and notifies.
func (s *Store) ApplyRemoteTag(t models.Tag) {
	s.mu.Lock()
	s.tags[t.ID] = t
	s.dirty = true
	s.mu.Unlock()
	s.notify()
}

// ApplyRemotePage upserts a page arriving from the sync layer.
func (s *Store) ApplyRemotePage(p models.Page) {
	s.mu.Lock()
	s.pages[p.ID] = p
	s.dirty = true
	s.mu.Unlock()
	s.notify()
}
