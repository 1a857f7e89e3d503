package models

// ChangeType identifies which entity collection a change belongs to.
type ChangeType string

const (
	ChangeTypeTag  ChangeType = "tag"
	ChangeTypePage ChangeType = "page"
)

// Operation is the kind of mutation carried by a pending change.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Tag is a user-defined label that can be attached to pages and bound to
// other tags. Bindings is a symmetric adjacency list: if A lists B, B lists A.
// Symmetry is maintained by the bind/unbind operations, not by storage.
type Tag struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Bindings    []string `json:"bindings,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	Deleted     bool     `json:"deleted,omitempty"`
}

// Page is a visited page the user has tagged. Tags holds tag ids; dangling
// ids are tolerated and filtered at read time, not enforced on write.
type Page struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Domain      string   `json:"domain,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Favicon     string   `json:"favicon,omitempty"`
	Description string   `json:"description,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
	Deleted     bool     `json:"deleted,omitempty"`
}

// PendingChange is a local mutation not yet confirmed delivered to the
// remote store.
type PendingChange struct {
	Type      ChangeType `json:"type"`
	Operation Operation  `json:"operation"`
	ID        string     `json:"id"`
	Data      []byte     `json:"data,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// ShadowEntry records the last merged state of one entity: the common
// ancestor used by the three-way merge. Keyed by "<type>:<id>" in the
// persisted shadow map.
type ShadowEntry struct {
	Hash      string `json:"hash"`
	UpdatedAt int64  `json:"updated_at"`
}

// ShadowKey builds the shadow-map key for an entity.
func ShadowKey(t ChangeType, id string) string {
	return string(t) + ":" + id
}

// SyncLock is the persisted record that serializes sync attempts across
// engine instances. A lock older than the engine's TTL is abandoned and may
// be forcibly cleared.
type SyncLock struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// SyncState is the process-local status surfaced to callers. Not persisted.
type SyncState struct {
	IsSyncing           bool   `json:"is_syncing"`
	LastSyncAt          int64  `json:"last_sync_at,omitempty"`
	PendingChangesCount int    `json:"pending_changes_count"`
	Error               string `json:"error,omitempty"`
}

// Entity is the common surface the merge strategies need from tags and
// pages. Both Tag and Page implement it by value.
type Entity interface {
	EntityID() string
	EntityUpdatedAt() int64
	IsDeleted() bool
	ContentHash() string
}

// EntityID returns the tag id.
func (t Tag) EntityID() string { return t.ID }

// EntityUpdatedAt returns the logical-clock update timestamp.
func (t Tag) EntityUpdatedAt() int64 { return t.UpdatedAt }

// IsDeleted reports whether the tag is a tombstone.
func (t Tag) IsDeleted() bool { return t.Deleted }

// EntityID returns the page id.
func (p Page) EntityID() string { return p.ID }

// EntityUpdatedAt returns the logical-clock update timestamp.
func (p Page) EntityUpdatedAt() int64 { return p.UpdatedAt }

// IsDeleted reports whether the page is a tombstone.
func (p Page) IsDeleted() bool { return p.Deleted }
