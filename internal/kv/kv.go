// Package kv provides the durable key/value persistence layer used for both
// the entity collections and the sync engine's bookkeeping (lock, cursors,
// shadow map, outbox). Values are JSON; readers tolerate missing keys.
package kv

import (
	"context"
	"encoding/json"
)

// Keys used by the core. All persisted state is flat key/value entries;
// compatibility is maintained by tolerating missing or null fields on read.
const (
	KeyTags         = "tags"
	KeyPages        = "pages"
	KeyOutbox       = "pending_changes"
	KeySyncLock     = "sync_lock"
	KeyShadowMap    = "sync_shadow"
	KeyLastFullSync = "last_full_sync_at"
	KeyCursor       = "incremental_cursor"
)

// Adapter is the durable key/value contract the core depends on. Every call
// is an awaited suspension point: the host may tear the process down between
// any two of them, so callers persist incrementally and never rely on
// in-memory intermediate state surviving a restart.
type Adapter interface {
	// Get unmarshals the value for key into out. Returns false when the key
	// is absent; out is left untouched in that case.
	Get(ctx context.Context, key string, out any) (bool, error)
	// GetMultiple returns the raw values for the keys that exist.
	GetMultiple(ctx context.Context, keys []string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, key string, value any) error
	SetMultiple(ctx context.Context, values map[string]any) error
	Remove(ctx context.Context, key string) error
	RemoveMultiple(ctx context.Context, keys []string) error
}
