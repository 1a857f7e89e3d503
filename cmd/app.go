package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/ines/tagmark/internal/clock"
	"github.com/ines/tagmark/internal/config"
	"github.com/ines/tagmark/internal/kv"
	"github.com/ines/tagmark/internal/outbox"
	"github.com/ines/tagmark/internal/remote"
	"github.com/ines/tagmark/internal/store"
	tagsync "github.com/ines/tagmark/internal/sync"
)

// App wires the explicitly constructed component graph for one command
// invocation. Nothing here is a package-level singleton.
type App struct {
	KV     *kv.SQLite
	Clock  *clock.Service
	Store  *store.Store
	Outbox *outbox.Queue
	Remote *remote.Client
	Engine *tagsync.Engine
}

// openApp builds the store, outbox and engine against the local database
// and the configured remote store.
func openApp(ctx context.Context) (*App, error) {
	dbPath, err := config.DBPath()
	if err != nil {
		return nil, err
	}
	adapter, err := kv.Open(dbPath)
	if err != nil {
		return nil, err
	}

	var apiKey, userID string
	if creds, err := config.LoadAuth(); err == nil && creds != nil {
		apiKey = creds.APIKey
		userID = creds.UserID
	}
	deviceID, err := config.GetDeviceID()
	if err != nil {
		adapter.Close()
		return nil, err
	}

	client := remote.NewClient(config.GetServerURL(), apiKey, deviceID)
	clk := clock.New(client)
	st := store.New(adapter, clk)
	if err := st.Load(ctx); err != nil {
		adapter.Close()
		return nil, err
	}
	ob := outbox.New(adapter)
	if err := ob.Load(ctx); err != nil {
		adapter.Close()
		return nil, err
	}
	engine := tagsync.New(st, ob, adapter, clk, client, userID, tagsync.DefaultOptions())

	return &App{
		KV:     adapter,
		Clock:  clk,
		Store:  st,
		Outbox: ob,
		Remote: client,
		Engine: engine,
	}, nil
}

// Close commits any straggling dirty state and closes the database.
func (a *App) Close(ctx context.Context) {
	if err := a.Store.Commit(ctx); err != nil {
		slog.Warn("commit on close", "err", err)
	}
	if err := a.KV.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}

// autoSync runs a quick background sync after a mutating command. Errors
// are logged, never returned: offline writes already succeeded locally.
func (a *App) autoSync(ctx context.Context) {
	if a.Engine.UserID() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	a.Clock.Calibrate(ctx)
	if err := a.Engine.SyncAll(ctx); err != nil {
		slog.Debug("autosync", "err", err)
	}
}
