// Package sync orchestrates reconciliation between the local store, the
// outbox and the remote data source: lock acquisition, strategy selection
// (full three-way merge vs incremental), merge and commit.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/ines/tagmark/internal/clock"
	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/models"
	"github.com/ines/tagmark/internal/outbox"
	"github.com/ines/tagmark/internal/realtime"
	"github.com/ines/tagmark/internal/remote"
	"github.com/ines/tagmark/internal/store"
)

// Sentinel errors surfaced by the engine.
var (
	// ErrBusy means the lock retry budget was exhausted. Repeated contention
	// indicates a stuck instance, not transient load.
	ErrBusy = errors.New("sync: system busy")
	// ErrNotAuthenticated means sync was requested without an identity.
	ErrNotAuthenticated = errors.New("sync: not authenticated")
)

// Options are the engine's tunables. Configurable here, but no adaptive
// policy adjusts them at runtime.
type Options struct {
	LockTTL           time.Duration // age past which a persisted lock is abandoned
	LockRetryInterval time.Duration
	LockMaxRetries    int
	SkewBuffer        time.Duration // backward fetch window against clock drift
	FullSyncInterval  time.Duration // force a full reconciliation this often
	MemoCap           int           // recent-changes memo size before wholesale clear
}

// DefaultOptions returns the production tunables.
func DefaultOptions() Options {
	return Options{
		LockTTL:           5 * time.Minute,
		LockRetryInterval: time.Second,
		LockMaxRetries:    10,
		SkewBuffer:        2 * time.Minute,
		FullSyncInterval:  7 * 24 * time.Hour,
		MemoCap:           200,
	}
}

// Engine coordinates the local store, outbox, persistence bookkeeping and
// the remote data source. Construct with New and inject everywhere it is
// needed; there is no package-level instance.
type Engine struct {
	store  *store.Store
	outbox *outbox.Queue
	kv     kv.Adapter
	clock  *clock.Service
	remote remote.DataSource
	feed   realtime.Feed // optional; stopped on identity switch
	opts   Options

	mu       gosync.Mutex
	userID   string
	state    models.SyncState
	lockID   string
	applying bool
	memo     map[string]bool
}

// New creates an engine. userID may be empty (unauthenticated: the write
// path queues instead of pushing).
func New(st *store.Store, ob *outbox.Queue, adapter kv.Adapter, clk *clock.Service, ds remote.DataSource, userID string, opts Options) *Engine {
	return &Engine{
		store:  st,
		outbox: ob,
		kv:     adapter,
		clock:  clk,
		remote: ds,
		opts:   opts,
		userID: userID,
		memo:   make(map[string]bool),
	}
}

// SetFeed attaches the realtime feed so an identity switch can stop it.
func (e *Engine) SetFeed(f realtime.Feed) {
	e.mu.Lock()
	e.feed = f
	e.mu.Unlock()
}

// UserID returns the current identity scope.
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// State returns a snapshot of the sync status.
func (e *Engine) State() models.SyncState {
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	st.PendingChangesCount = e.outbox.Count()
	return st
}

// SyncAll runs one full reconciliation attempt: acquire the lock, pick a
// strategy, merge, commit, release. Errors are recorded in the sync state
// and returned; they never leave durable state inconsistent, since a crash
// before commit keeps the previous persisted state.
func (e *Engine) SyncAll(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.state.IsSyncing {
		e.mu.Unlock()
		slog.Debug("sync: attempt already in flight, skipping")
		return nil
	}
	e.state.IsSyncing = true
	e.state.Error = ""
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.state.IsSyncing = false
		if err != nil {
			e.state.Error = err.Error()
		} else {
			e.state.LastSyncAt = e.clock.Now()
		}
		e.mu.Unlock()
	}()

	if e.UserID() == "" {
		return ErrNotAuthenticated
	}

	if err = e.acquireLock(ctx); err != nil {
		return err
	}
	defer func() {
		if rerr := e.releaseLock(ctx); rerr != nil {
			slog.Warn("sync: release lock", "err", rerr)
		}
	}()

	full, serr := e.shouldRunFullSync(ctx)
	if serr != nil {
		err = serr
		return err
	}

	if full {
		slog.Debug("sync: running full reconciliation")
		err = e.fullSync(ctx)
	} else {
		slog.Debug("sync: running incremental sync")
		err = e.incrementalSync(ctx)
	}
	return err
}

// shouldRunFullSync decides the strategy. Full reconciliation is forced
// when the shadow map is empty (no trustworthy merge ancestor) or the last
// full sync is older than FullSyncInterval.
func (e *Engine) shouldRunFullSync(ctx context.Context) (bool, error) {
	shadow := map[string]models.ShadowEntry{}
	if _, err := e.kv.Get(ctx, kv.KeyShadowMap, &shadow); err != nil {
		return false, fmt.Errorf("read shadow map: %w", err)
	}
	if len(shadow) == 0 {
		return true, nil
	}
	var last int64
	if _, err := e.kv.Get(ctx, kv.KeyLastFullSync, &last); err != nil {
		return false, fmt.Errorf("read last full sync: %w", err)
	}
	return e.clock.Now()-last > e.opts.FullSyncInterval.Milliseconds(), nil
}

// fullSync performs the three-way merge of local state, outbox intent and
// the complete remote tables, then rebuilds the shadow map and uploads
// whatever is still pending.
func (e *Engine) fullSync(ctx context.Context) error {
	user := e.UserID()
	pendingDeletes := e.outbox.PendingDeleteIDs()

	shadow := map[string]models.ShadowEntry{}
	if _, err := e.kv.Get(ctx, kv.KeyShadowMap, &shadow); err != nil {
		return fmt.Errorf("read shadow map: %w", err)
	}

	tagRows, err := e.remote.Fetch(ctx, remote.TableTags, user, 0)
	if err != nil {
		return fmt.Errorf("fetch tags: %w", err)
	}
	pageRows, err := e.remote.Fetch(ctx, remote.TablePages, user, 0)
	if err != nil {
		return fmt.Errorf("fetch pages: %w", err)
	}

	remoteTags := make([]models.Tag, len(tagRows))
	for i, r := range tagRows {
		remoteTags[i] = r.Tag()
	}
	remotePages := make([]models.Page, len(pageRows))
	for i, r := range pageRows {
		remotePages[i] = r.Page()
	}

	mergedTags := mergeFull(e.store.AllTags(), remoteTags, models.ChangeTypeTag, shadow, pendingDeletes)
	mergedPages := mergeFull(e.store.AllPages(), remotePages, models.ChangeTypePage, shadow, pendingDeletes)
	e.store.UpdateData(mergedTags, mergedPages)

	if err := e.kv.SetMultiple(ctx, map[string]any{
		kv.KeyShadowMap:    buildShadow(mergedTags, mergedPages),
		kv.KeyLastFullSync: e.clock.Now(),
	}); err != nil {
		return fmt.Errorf("persist shadow map: %w", err)
	}

	if err := e.uploadOutbox(ctx); err != nil {
		return err
	}
	if err := e.store.Commit(ctx); err != nil {
		return err
	}
	slog.Info("sync: full reconciliation done", "tags", len(mergedTags), "pages", len(mergedPages))
	return nil
}

// incrementalSync uploads the outbox, fetches only the rows changed since
// the cursor (minus the skew buffer) and merges the delta. An id absent
// from the delta is unchanged remotely and kept as-is; absence does not
// mean gone.
func (e *Engine) incrementalSync(ctx context.Context) error {
	user := e.UserID()

	// Captured before the fetch so changes made during the sync window are
	// rescanned on the next run rather than skipped.
	fetchStart := e.clock.Now()

	var cursor int64
	if _, err := e.kv.Get(ctx, kv.KeyCursor, &cursor); err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	// Deletes go out before the fetch so the merge below cannot un-delete
	// them.
	hadPending := e.outbox.Count() > 0
	if hadPending {
		if err := e.uploadOutbox(ctx); err != nil {
			return err
		}
	}

	var since int64
	if cursor > 0 {
		since = cursor - e.opts.SkewBuffer.Milliseconds()
		if since < 0 {
			since = 0
		}
	}

	tagRows, err := e.remote.Fetch(ctx, remote.TableTags, user, since)
	if err != nil {
		return fmt.Errorf("fetch tags since %d: %w", since, err)
	}
	pageRows, err := e.remote.Fetch(ctx, remote.TablePages, user, since)
	if err != nil {
		return fmt.Errorf("fetch pages since %d: %w", since, err)
	}

	if len(tagRows) == 0 && len(pageRows) == 0 && !hadPending {
		// Nothing moved on either side. Still advance the cursor so the
		// next run does not rescan the same range.
		return e.kv.Set(ctx, kv.KeyCursor, fetchStart)
	}

	remoteTags := make([]models.Tag, len(tagRows))
	for i, r := range tagRows {
		remoteTags[i] = r.Tag()
	}
	remotePages := make([]models.Page, len(pageRows))
	for i, r := range pageRows {
		remotePages[i] = r.Page()
	}

	mergedTags := mergeIncremental(e.store.AllTags(), remoteTags)
	mergedPages := mergeIncremental(e.store.AllPages(), remotePages)
	e.store.UpdateData(mergedTags, mergedPages)

	if err := e.store.Commit(ctx); err != nil {
		return err
	}
	if err := e.kv.Set(ctx, kv.KeyCursor, fetchStart); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	slog.Info("sync: incremental done", "remote_tags", len(tagRows), "remote_pages", len(pageRows))
	return nil
}
