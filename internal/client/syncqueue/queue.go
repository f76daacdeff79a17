// Package syncqueue holds writes the server has not confirmed yet and
// replays them when connectivity returns.
//
// The queue keeps at most one item per URL: a newer write for the same
// resource replaces the older unsent one. Items are persisted in the local
// store under the "sync_queue" key.
package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/google/uuid"
)

// Item is one queued write.
type Item struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Method    string          `json:"method"`
	Body      json.RawMessage `json:"body,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Sender replays an item. A non-nil error means the request never got an
// HTTP answer; status is meaningful only when err is nil.
type Sender interface {
	Send(ctx context.Context, method, url string, body []byte) (status int, err error)
}

// Store is the subset of the local store the queue needs.
type Store interface {
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string)
}

type Queue struct {
	mu       sync.Mutex
	store    Store
	sender   Sender
	logger   logging.Logger
	flushing atomic.Bool
	now      func() time.Time
}

func New(store Store, sender Sender, logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{store: store, sender: sender, logger: logger, now: time.Now}
}

func (q *Queue) load(ctx context.Context) []Item {
	var items []Item
	if !q.store.GetJSON(ctx, common.SyncQueueKey, &items) {
		return nil
	}
	return items
}

func (q *Queue) save(ctx context.Context, items []Item) {
	if err := q.store.SetJSON(ctx, common.SyncQueueKey, items); err != nil {
		q.logger.Error(ctx, "sync queue not saved", "error", err)
	}
}

// Enqueue records a write. body is JSON-encoded; nil means no body.
// Any unsent item for the same URL is replaced.
func (q *Queue) Enqueue(ctx context.Context, method, url string, body any) error {
	if url == "" || method == "" {
		return fmt.Errorf("%w: method and url are required", common.ErrInvalidInput)
	}

	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode body: %w", common.ErrInvalidInput, err)
		}
		raw = b
	}

	item := Item{
		ID:        uuid.NewString(),
		URL:       url,
		Method:    method,
		Body:      raw,
		Timestamp: q.now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load(ctx)
	kept := items[:0]
	for _, it := range items {
		if it.URL != url {
			kept = append(kept, it)
		}
	}
	kept = append(kept, item)
	q.save(ctx, kept)

	q.logger.Debug(ctx, "write queued", "method", method, "url", url)
	return nil
}

// Items returns a snapshot of the queue in replay order.
func (q *Queue) Items(ctx context.Context) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Pending returns the unsent write for url, if any.
func (q *Queue) Pending(ctx context.Context, url string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.load(ctx) {
		if it.URL == url {
			return it, true
		}
	}
	return Item{}, false
}

func (q *Queue) Len(ctx context.Context) int {
	return len(q.Items(ctx))
}

// Clear drops every queued write.
func (q *Queue) Clear(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.store.Delete(ctx, common.SyncQueueKey)
}

type outcome int

const (
	keep outcome = iota
	applied
	drop
)

func classify(status int) outcome {
	switch {
	case status >= 200 && status < 300, status == http.StatusConflict:
		return applied
	case status == http.StatusUnauthorized,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		return keep
	case status >= 400 && status < 500:
		return drop
	default:
		return keep
	}
}

// Flush replays the queue once and returns how many items the server
// accepted (2xx, or 409 for a write it already has). Server errors and
// network failures leave the item queued; other client errors drop it.
// A Flush that starts while another one is running returns 0 immediately.
func (q *Queue) Flush(ctx context.Context) int {
	if !q.flushing.CompareAndSwap(false, true) {
		return 0
	}
	defer q.flushing.Store(false)

	processed := 0
	for _, it := range q.Items(ctx) {
		if ctx.Err() != nil {
			break
		}

		status, err := q.sender.Send(ctx, it.Method, it.URL, it.Body)
		if err != nil {
			q.logger.Debug(ctx, "queued write not sent", "url", it.URL, "error", err)
			continue
		}

		switch classify(status) {
		case applied:
			q.remove(ctx, it.ID)
			processed++
		case drop:
			q.remove(ctx, it.ID)
			q.logger.Warn(ctx, "queued write rejected, dropped",
				"method", it.Method, "url", it.URL, "status", status)
		default:
			q.logger.Debug(ctx, "queued write kept", "url", it.URL, "status", status)
		}
	}
	return processed
}

// remove deletes exactly the item that was sent. A newer write for the same
// URL enqueued during the flush has a different id and survives.
func (q *Queue) remove(ctx context.Context, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load(ctx)
	for i := range items {
		if items[i].ID == id {
			q.save(ctx, append(items[:i], items[i+1:]...))
			return
		}
	}
}
