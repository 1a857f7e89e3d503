package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/models"
)

// acquireLock takes the persisted sync lock. At most one engine instance
// holds a non-expired lock; other instances may be separate processes woken
// by the same host, so mutual exclusion has to live in durable state, not
// in memory. The loop is explicitly bounded: exhaustion returns ErrBusy
// instead of retrying forever.
func (e *Engine) acquireLock(ctx context.Context) error {
	id := uuid.NewString()

	for attempt := 0; ; {
		var lock models.SyncLock
		found, err := e.kv.Get(ctx, kv.KeySyncLock, &lock)
		if err != nil {
			return fmt.Errorf("read sync lock: %w", err)
		}

		if !found {
			if err := e.kv.Set(ctx, kv.KeySyncLock, models.SyncLock{ID: id, Timestamp: e.clock.Now()}); err != nil {
				return fmt.Errorf("write sync lock: %w", err)
			}
			e.mu.Lock()
			e.lockID = id
			e.mu.Unlock()
			return nil
		}

		age := e.clock.Now() - lock.Timestamp
		if age > e.opts.LockTTL.Milliseconds() {
			// Zombie lock: the holder crashed or was suspended before
			// releasing. Reclaiming does not count against the retry budget.
			slog.Warn("sync: clearing abandoned lock", "holder", lock.ID, "age", time.Duration(age)*time.Millisecond)
			if err := e.kv.Remove(ctx, kv.KeySyncLock); err != nil {
				return fmt.Errorf("clear abandoned lock: %w", err)
			}
			continue
		}

		attempt++
		if attempt > e.opts.LockMaxRetries {
			return ErrBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.opts.LockRetryInterval):
		}
	}
}

// releaseLock clears the persisted lock only if it still carries the id
// this instance wrote. After a TTL takeover the lock belongs to someone
// else and must be left alone.
func (e *Engine) releaseLock(ctx context.Context) error {
	e.mu.Lock()
	id := e.lockID
	e.lockID = ""
	e.mu.Unlock()
	if id == "" {
		return nil
	}

	var lock models.SyncLock
	found, err := e.kv.Get(ctx, kv.KeySyncLock, &lock)
	if err != nil {
		return fmt.Errorf("read sync lock: %w", err)
	}
	if !found || lock.ID != id {
		slog.Debug("sync: lock no longer ours, not releasing", "ours", id, "current", lock.ID)
		return nil
	}
	if err := e.kv.Remove(ctx, kv.KeySyncLock); err != nil {
		return fmt.Errorf("release sync lock: %w", err)
	}
	return nil
}
