// Package realtime consumes the remote store's change feed over a
// websocket. Events are best-effort: the sync engine remains correct
// without them, they only shorten convergence time.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ines/tagmark/internal/remote"
)

// EventType classifies a change event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one remote change notification. Delete events are legacy and
// best-effort; the primary deletion signal is the deleted flag on an
// insert/update row.
type Event struct {
	Table string      `json:"table"`
	Type  EventType   `json:"event_type"`
	Old   *remote.Row `json:"old,omitempty"`
	New   *remote.Row `json:"new,omitempty"`
}

// Handler processes a single change event. Handler errors are logged and
// never stop the feed.
type Handler func(ctx context.Context, ev Event) error

// Feed is the change-feed contract the sync engine stops on user switch.
type Feed interface {
	// Run subscribes and blocks, delivering events to the handler until the
	// context is canceled or Close is called.
	Run(ctx context.Context, userID string, h Handler) error
	Close() error
}

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// WSFeed is a websocket Feed implementation.
type WSFeed struct {
	BaseURL string // http(s) base of the remote store
	APIKey  string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWSFeed creates a feed client against the remote store's base URL.
func NewWSFeed(baseURL, apiKey string) *WSFeed {
	return &WSFeed{BaseURL: baseURL, APIKey: apiKey}
}

// Run dials the change endpoint and reads events until the context ends or
// Close is called, reconnecting with capped backoff on read failures.
func (f *WSFeed) Run(ctx context.Context, userID string, h Handler) error {
	backoff := reconnectMin
	for {
		if err := f.runOnce(ctx, userID, h); err != nil {
			if ctx.Err() != nil || f.isClosed() {
				return nil
			}
			slog.Warn("realtime: connection lost, reconnecting", "err", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, reconnectMax)
			continue
		}
		return nil
	}
}

func (f *WSFeed) runOnce(ctx context.Context, userID string, h Handler) error {
	wsURL, err := changeURL(f.BaseURL, userID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Bearer " + f.APIKey}},
	})
	if err != nil {
		return fmt.Errorf("dial change feed: %w", err)
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	f.conn = conn
	f.mu.Unlock()
	slog.Debug("realtime: subscribed", "user", userID)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if f.isClosed() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read change feed: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("realtime: bad event payload", "err", err)
			continue
		}
		if err := h(ctx, ev); err != nil {
			slog.Warn("realtime: handler failed", "table", ev.Table, "type", ev.Type, "err", err)
		}
	}
}

// Close stops the feed. Safe to call from another goroutine than Run.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	return nil
}

func (f *WSFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func changeURL(base, userID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme for change feed: " + u.Scheme)
	}
	u.Path = "/v1/changes"
	q := u.Query()
	q.Set("user", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
