package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/models"
)

func TestAcquireLock_ReclaimsZombie(t *testing.T) {
	env := newTestEnv(t, "u1")
	ctx := context.Background()

	// A lock older than the TTL was left behind by a crashed instance.
	stale := time.Now().UnixMilli() - (testOptions().LockTTL + time.Minute).Milliseconds()
	if err := env.kv.Set(ctx, kv.KeySyncLock, models.SyncLock{ID: "crashed", Timestamp: stale}); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	start := time.Now()
	if err := env.engine.acquireLock(ctx); err != nil {
		t.Fatalf("acquire over zombie lock: %v", err)
	}
	// Reclaiming must not burn the retry budget, so this is near-instant.
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("acquire took %v, reclaim should not wait out retries", elapsed)
	}

	var lock models.SyncLock
	found, _ := env.kv.Get(ctx, kv.KeySyncLock, &lock)
	if !found {
		t.Fatal("lock should be held after acquire")
	}
	if lock.ID == "crashed" {
		t.Error("zombie lock should have been replaced with our own")
	}
}

func TestAcquireLock_BusyAfterRetries(t *testing.T) {
	env := newTestEnv(t, "u1")
	ctx := context.Background()

	// A live lock that never goes away.
	if err := env.kv.Set(ctx, kv.KeySyncLock, models.SyncLock{
		ID: "other", Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	if err := env.engine.acquireLock(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy after exhausting retries", err)
	}

	// The holder's lock is untouched.
	var lock models.SyncLock
	if found, _ := env.kv.Get(ctx, kv.KeySyncLock, &lock); !found || lock.ID != "other" {
		t.Errorf("lock = %+v (found=%v), want the original holder intact", lock, found)
	}
}

func TestAcquireLock_ContextCanceled(t *testing.T) {
	env := newTestEnv(t, "u1")
	ctx, cancel := context.WithCancel(context.Background())

	if err := env.kv.Set(ctx, kv.KeySyncLock, models.SyncLock{
		ID: "other", Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	cancel()

	if err := env.engine.acquireLock(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReleaseLock_OnlyIfOurs(t *testing.T) {
	env := newTestEnv(t, "u1")
	ctx := context.Background()

	if err := env.engine.acquireLock(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Someone else took over (TTL expiry on their side) before we released.
	if err := env.kv.Set(ctx, kv.KeySyncLock, models.SyncLock{
		ID: "takeover", Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatalf("overwrite lock: %v", err)
	}

	if err := env.engine.releaseLock(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	var lock models.SyncLock
	if found, _ := env.kv.Get(ctx, kv.KeySyncLock, &lock); !found || lock.ID != "takeover" {
		t.Errorf("lock = %+v (found=%v), releasing must not clear another holder's lock", lock, found)
	}
}

func TestReleaseLock_ClearsOwnLock(t *testing.T) {
	env := newTestEnv(t, "u1")
	ctx := context.Background()

	if err := env.engine.acquireLock(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := env.engine.releaseLock(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	var lock models.SyncLock
	if found, _ := env.kv.Get(ctx, kv.KeySyncLock, &lock); found {
		t.Error("lock should be gone after release")
	}

	// Releasing twice is a no-op.
	if err := env.engine.releaseLock(ctx); err != nil {
		t.Errorf("double release: %v", err)
	}
}
