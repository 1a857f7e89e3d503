// Package outbox is the durable queue of local mutations not yet confirmed
// delivered to the remote store. Every change to the queue is persisted
// immediately: the host can be torn down at any awaited suspension point.
package outbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/models"
)

// Queue holds pending changes in memory, mirrored to the persistence
// adapter after every mutation.
type Queue struct {
	kv kv.Adapter

	mu    sync.Mutex
	items []models.PendingChange
}

// New creates an empty queue. Call Load to restore persisted entries.
func New(adapter kv.Adapter) *Queue {
	return &Queue{kv: adapter}
}

// Load restores the queue from the adapter. A missing key is an empty
// queue.
func (q *Queue) Load(ctx context.Context) error {
	var items []models.PendingChange
	if _, err := q.kv.Get(ctx, kv.KeyOutbox, &items); err != nil {
		return fmt.Errorf("load outbox: %w", err)
	}
	q.mu.Lock()
	q.items = items
	q.mu.Unlock()
	return nil
}

// Enqueue appends a change and persists the queue.
func (q *Queue) Enqueue(ctx context.Context, change models.PendingChange) error {
	q.mu.Lock()
	q.items = append(q.items, change)
	items := q.snapshotLocked()
	q.mu.Unlock()
	return q.persist(ctx, items)
}

// DrainAll clears the queue and returns its contents with deletions first.
// A delete racing behind a create for the same id could otherwise let a
// remote ghost resurrect after being removed locally; uploading deletes
// first closes that window. Relative order within each group is preserved.
func (q *Queue) DrainAll(ctx context.Context) ([]models.PendingChange, error) {
	q.mu.Lock()
	var deletes, rest []models.PendingChange
	for _, c := range q.items {
		if c.Operation == models.OpDelete {
			deletes = append(deletes, c)
		} else {
			rest = append(rest, c)
		}
	}
	q.items = nil
	q.mu.Unlock()

	if err := q.persist(ctx, nil); err != nil {
		return nil, err
	}
	return append(deletes, rest...), nil
}

// Requeue puts failed uploads back so they are retried on the next sync
// pass, and persists the queue.
func (q *Queue) Requeue(ctx context.Context, changes []models.PendingChange) error {
	if len(changes) == 0 {
		return nil
	}
	q.mu.Lock()
	q.items = append(q.items, changes...)
	items := q.snapshotLocked()
	q.mu.Unlock()
	return q.persist(ctx, items)
}

// Count returns the number of pending changes.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PendingDeleteIDs returns the set of entity ids with a queued delete,
// keyed by shadow key. The full-sync merge uses this to drop stale local
// copies of entities whose deletion has not round-tripped yet.
func (q *Queue) PendingDeleteIDs() map[string]bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]bool)
	for _, c := range q.items {
		if c.Operation == models.OpDelete {
			out[models.ShadowKey(c.Type, c.ID)] = true
		}
	}
	return out
}

// Wipe discards all pending changes, in memory and persisted. Used at the
// identity-switch boundary; the data loss is intentional.
func (q *Queue) Wipe(ctx context.Context) error {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	if err := q.kv.Remove(ctx, kv.KeyOutbox); err != nil {
		return fmt.Errorf("wipe outbox: %w", err)
	}
	return nil
}

func (q *Queue) snapshotLocked() []models.PendingChange {
	items := make([]models.PendingChange, len(q.items))
	copy(items, q.items)
	return items
}

func (q *Queue) persist(ctx context.Context, items []models.PendingChange) error {
	if err := q.kv.Set(ctx, kv.KeyOutbox, items); err != nil {
		return fmt.Errorf("persist outbox: %w", err)
	}
	return nil
}
