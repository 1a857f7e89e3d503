package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/models"
	"github.com/ines/tagmark/internal/realtime"
	"github.com/ines/tagmark/internal/remote"
)

// MarkTagChange is the write path for tag mutations: push to the remote
// store immediately when authenticated, enqueue to the outbox otherwise or
// when the push fails. Remote-write failures are never surfaced to the
// caller; offline operation is a first-class mode.
func (e *Engine) MarkTagChange(ctx context.Context, op models.Operation, id string, tag *models.Tag) error {
	change := models.PendingChange{
		Type:      models.ChangeTypeTag,
		Operation: op,
		ID:        id,
		Timestamp: e.clock.Now(),
	}
	if tag != nil {
		data, err := json.Marshal(remote.TagRow(*tag))
		if err != nil {
			return fmt.Errorf("marshal tag change: %w", err)
		}
		change.Data = data
	}
	return e.markChange(ctx, change)
}

// MarkPageChange is the write path for page mutations.
func (e *Engine) MarkPageChange(ctx context.Context, op models.Operation, id string, page *models.Page) error {
	change := models.PendingChange{
		Type:      models.ChangeTypePage,
		Operation: op,
		ID:        id,
		Timestamp: e.clock.Now(),
	}
	if page != nil {
		data, err := json.Marshal(remote.PageRow(*page))
		if err != nil {
			return fmt.Errorf("marshal page change: %w", err)
		}
		change.Data = data
	}
	return e.markChange(ctx, change)
}

func (e *Engine) markChange(ctx context.Context, change models.PendingChange) error {
	if e.UserID() == "" {
		return e.outbox.Enqueue(ctx, change)
	}
	if err := e.uploadChange(ctx, change); err != nil {
		slog.Warn("sync: immediate push failed, queueing",
			"type", change.Type, "op", change.Operation, "id", change.ID, "err", err)
		return e.outbox.Enqueue(ctx, change)
	}
	return nil
}

// uploadOutbox drains the queue (deletes first) and pushes every change.
// Per-item failures are re-enqueued, not dropped, so they retry on the next
// pass; only persistence failures abort.
func (e *Engine) uploadOutbox(ctx context.Context) error {
	changes, err := e.outbox.DrainAll(ctx)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	var failed []models.PendingChange
	for _, c := range changes {
		if err := e.uploadChange(ctx, c); err != nil {
			slog.Warn("sync: upload failed, re-queueing",
				"type", c.Type, "op", c.Operation, "id", c.ID, "err", err)
			failed = append(failed, c)
		}
	}
	if len(failed) > 0 {
		return e.outbox.Requeue(ctx, failed)
	}
	slog.Debug("sync: outbox drained", "uploaded", len(changes))
	return nil
}

func (e *Engine) uploadChange(ctx context.Context, c models.PendingChange) error {
	user := e.UserID()
	table := remote.TableTags
	if c.Type == models.ChangeTypePage {
		table = remote.TablePages
	}

	if c.Operation == models.OpDelete {
		return e.remote.SoftDelete(ctx, table, c.ID, user)
	}

	var row remote.Row
	if len(c.Data) > 0 {
		if err := json.Unmarshal(c.Data, &row); err != nil {
			return fmt.Errorf("unmarshal change data: %w", err)
		}
	} else {
		// Queued without a snapshot: push the current entity state.
		switch c.Type {
		case models.ChangeTypeTag:
			t, ok := e.store.TagAny(c.ID)
			if !ok {
				slog.Debug("sync: queued tag vanished, dropping change", "id", c.ID)
				return nil
			}
			row = remote.TagRow(t)
		case models.ChangeTypePage:
			p, ok := e.store.PageAny(c.ID)
			if !ok {
				slog.Debug("sync: queued page vanished, dropping change", "id", c.ID)
				return nil
			}
			row = remote.PageRow(p)
		}
	}
	return e.remote.Upsert(ctx, table, user, row)
}

// HandleRemoteChange applies one incoming change-feed event. It satisfies
// realtime.Handler. Guards, in order: a re-entrancy flag so applying one
// change cannot recursively trigger processing of another; a bounded memo
// deduplicating re-delivered events; the soft-delete check; a staleness
// check that drops older-or-equal changes whose content matches. The
// re-entrancy flag is reset in a defer so a failing event can never wedge
// future processing.
func (e *Engine) HandleRemoteChange(ctx context.Context, ev realtime.Event) error {
	e.mu.Lock()
	if e.applying {
		e.mu.Unlock()
		slog.Debug("sync: change application in progress, dropping event")
		return nil
	}
	e.applying = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.applying = false
		e.mu.Unlock()
	}()

	row := ev.New
	if row == nil {
		row = ev.Old
	}
	if row == nil || row.ID == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%s:%d", ev.Table, row.ID, row.UpdatedAt)
	if e.seenChange(key) {
		return nil
	}

	// Feed delete events are legacy; the primary deletion signal is the
	// deleted flag on the row.
	deleted := ev.Type == realtime.EventDelete || row.Deleted

	switch ev.Table {
	case remote.TableTags:
		t := row.Tag()
		t.Deleted = deleted
		if local, ok := e.store.TagAny(t.ID); ok {
			if t.UpdatedAt <= local.UpdatedAt && t.ContentHash() == local.ContentHash() {
				e.rememberChange(key)
				return nil
			}
		}
		e.store.ApplyRemoteTag(t)
	case remote.TablePages:
		p := row.Page()
		p.Deleted = deleted
		if local, ok := e.store.PageAny(p.ID); ok {
			if p.UpdatedAt <= local.UpdatedAt && p.ContentHash() == local.ContentHash() {
				e.rememberChange(key)
				return nil
			}
		}
		e.store.ApplyRemotePage(p)
	default:
		slog.Warn("sync: change event for unknown table", "table", ev.Table)
		return nil
	}

	e.rememberChange(key)
	return e.store.Commit(ctx)
}

func (e *Engine) seenChange(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memo[key]
}

func (e *Engine) rememberChange(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.memo) >= e.opts.MemoCap {
		// Wholesale clear past the cap. A coarse growth guard is enough;
		// the memo only suppresses repeated comparisons.
		e.memo = make(map[string]bool)
	}
	e.memo[key] = true
}

// SetIdentity records the authenticated identity. A change between two
// non-empty ids is a user switch: the realtime subscription is stopped and
// every piece of local state (store, outbox, cursor, shadow map, lock) is
// wiped before the new identity's data can arrive. Discarding unsynced
// mutations of the previous identity here is intentional: local data must
// never leak across identities on a shared profile.
func (e *Engine) SetIdentity(ctx context.Context, userID string) error {
	e.mu.Lock()
	old := e.userID
	e.mu.Unlock()

	if old != "" && userID != "" && old != userID {
		if err := e.wipeLocalState(ctx); err != nil {
			return err
		}
		slog.Info("sync: identity changed, local state wiped", "from", old, "to", userID)
	}

	e.mu.Lock()
	e.userID = userID
	e.mu.Unlock()
	return nil
}

func (e *Engine) wipeLocalState(ctx context.Context) error {
	e.mu.Lock()
	feed := e.feed
	e.mu.Unlock()
	if feed != nil {
		if err := feed.Close(); err != nil {
			slog.Warn("sync: close change feed", "err", err)
		}
	}

	if err := e.store.Wipe(ctx); err != nil {
		return err
	}
	if err := e.outbox.Wipe(ctx); err != nil {
		return err
	}
	if err := e.kv.RemoveMultiple(ctx, []string{
		kv.KeyCursor, kv.KeyShadowMap, kv.KeySyncLock, kv.KeyLastFullSync,
	}); err != nil {
		return fmt.Errorf("wipe sync bookkeeping: %w", err)
	}

	e.mu.Lock()
	e.state = models.SyncState{}
	e.memo = make(map[string]bool)
	e.applying = false
	e.lockID = ""
	e.mu.Unlock()
	return nil
}
