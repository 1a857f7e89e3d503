// Package remote abstracts the cloud data store. The engine depends only on
// the DataSource interface; the HTTP client is one implementation of it.
package remote

import (
	"context"

	"github.com/ines/tagmark/internal/models"
)

// Tables served by the remote store.
const (
	TableTags  = "tags"
	TablePages = "pages"
)

// Row is the wire representation shared by tag and page rows: the superset
// of both field sets plus the soft-delete flag. Unknown or missing fields
// are tolerated on read and treated as defaults.
type Row struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	URL         string   `json:"url,omitempty"`
	Title       string   `json:"title,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Favicon     string   `json:"favicon,omitempty"`
	Bindings    []string `json:"bindings,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	Deleted     bool     `json:"deleted,omitempty"`
}

// DataSource is the remote store contract. All writes are scoped by an
// opaque user key. Fetch with since=0 returns the full table.
type DataSource interface {
	Fetch(ctx context.Context, table, userID string, since int64) ([]Row, error)
	Upsert(ctx context.Context, table, userID string, row Row) error
	SoftDelete(ctx context.Context, table, id, userID string) error
	ServerTime(ctx context.Context) (int64, error)
}

// TagRow converts a tag to its wire row.
func TagRow(t models.Tag) Row {
	return Row{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Color:       t.Color,
		Bindings:    t.Bindings,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Deleted:     t.Deleted,
	}
}

// PageRow converts a page to its wire row.
func PageRow(p models.Page) Row {
	return Row{
		ID:          p.ID,
		URL:         p.URL,
		Title:       p.Title,
		Domain:      p.Domain,
		Description: p.Description,
		Favicon:     p.Favicon,
		Tags:        p.Tags,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Deleted:     p.Deleted,
	}
}

// Tag converts a wire row back to a tag.
func (r Row) Tag() models.Tag {
	return models.Tag{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		Bindings:    r.Bindings,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Deleted:     r.Deleted,
	}
}

// Page converts a wire row back to a page.
func (r Row) Page() models.Page {
	return models.Page{
		ID:          r.ID,
		URL:         r.URL,
		Title:       r.Title,
		Domain:      r.Domain,
		Description: r.Description,
		Favicon:     r.Favicon,
		Tags:        r.Tags,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Deleted:     r.Deleted,
	}
}
