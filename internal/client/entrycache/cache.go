// Package entrycache keeps the offline-first copy of journal entries, one
// per date, in the local store under the "local_entries" key.
//
// Conflicts between the cached copy and a server row are resolved by
// last-write-wins on UpdatedAt; on a tie the server copy wins.
package entrycache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/gophjournal/internal/client/models"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/google/uuid"
)

// Store is the subset of the local store the cache needs.
type Store interface {
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string)
}

type Cache struct {
	mu    sync.Mutex
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

func (c *Cache) load(ctx context.Context) []models.LocalEntry {
	var entries []models.LocalEntry
	if !c.store.GetJSON(ctx, common.LocalEntriesKey, &entries) {
		return nil
	}
	return entries
}

func (c *Cache) save(ctx context.Context, entries []models.LocalEntry) error {
	if err := c.store.SetJSON(ctx, common.LocalEntriesKey, entries); err != nil {
		return fmt.Errorf("save local entries: %w", err)
	}
	return nil
}

func indexOf(entries []models.LocalEntry, date string) int {
	for i := range entries {
		if entries[i].Date == date {
			return i
		}
	}
	return -1
}

// Upsert stores e, replacing any entry with the same date. The existing id
// is kept on replace; a new entry without id gets one.
func (c *Cache) Upsert(ctx context.Context, e models.LocalEntry) (models.LocalEntry, error) {
	if e.Date == "" {
		return models.LocalEntry{}, fmt.Errorf("%w: entry date is empty", common.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	if i := indexOf(entries, e.Date); i >= 0 {
		if e.ID == "" {
			e.ID = entries[i].ID
		}
		entries[i] = e
	} else {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		entries = append(entries, e)
	}
	return e, c.save(ctx, entries)
}

// Get returns the cached entry for date.
func (c *Cache) Get(ctx context.Context, date string) (models.LocalEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	if i := indexOf(entries, date); i >= 0 {
		return entries[i], true
	}
	return models.LocalEntry{}, false
}

// List returns every cached entry, newest date first.
func (c *Cache) List(ctx context.Context) []models.LocalEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	sortByDateDesc(entries)
	return entries
}

// Delete removes the entry for date. Deleting an absent date is a no-op.
func (c *Cache) Delete(ctx context.Context, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	i := indexOf(entries, date)
	if i < 0 {
		return nil
	}
	entries = append(entries[:i], entries[i+1:]...)
	return c.save(ctx, entries)
}

// Clear drops the whole cache, e.g. on sign-out or vault reset.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(ctx, common.LocalEntriesKey)
}

// Reconcile returns the winning copy of one journal day. Either argument may
// be nil; both nil yields ok=false. remoteWon reports whether the server row
// was chosen.
func Reconcile(local *models.LocalEntry, remote *models.RemoteEntry) (winner models.LocalEntry, remoteWon bool, ok bool) {
	switch {
	case local == nil && remote == nil:
		return models.LocalEntry{}, false, false
	case local == nil:
		return remote.ToLocal(""), true, true
	case remote == nil:
		return *local, false, true
	case local.UpdatedAt.After(remote.UpdatedAt):
		return *local, false, true
	default:
		return remote.ToLocal(local.ID), true, true
	}
}

// Merge reconciles the server rows with the cache, writes the winners back
// and returns the merged view, newest date first. A cached date the server
// does not return survives only while unsent(date) reports a queued upload
// for it; otherwise it was deleted remotely and is dropped.
func (c *Cache) Merge(ctx context.Context, remote []models.RemoteEntry, unsent func(date string) bool) ([]models.LocalEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load(ctx)
	changed := false

	known := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		known[r.Date] = struct{}{}
	}
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := known[e.Date]; ok || (unsent != nil && unsent(e.Date)) {
			kept = append(kept, e)
			continue
		}
		changed = true
	}
	entries = kept

	for i := range remote {
		r := remote[i]
		idx := indexOf(entries, r.Date)
		var local *models.LocalEntry
		if idx >= 0 {
			local = &entries[idx]
		}
		winner, remoteWon, _ := Reconcile(local, &r)
		if !remoteWon {
			continue
		}
		if idx >= 0 {
			if sameContent(entries[idx], winner) {
				continue
			}
			entries[idx] = winner
		} else {
			winner.ID = uuid.NewString()
			entries = append(entries, winner)
		}
		changed = true
	}

	if changed {
		if err := c.save(ctx, entries); err != nil {
			return nil, err
		}
	}
	sortByDateDesc(entries)
	return entries, nil
}

func sortByDateDesc(entries []models.LocalEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date > entries[j].Date })
}

func sameContent(a, b models.LocalEntry) bool {
	return a.ContentCipher == b.ContentCipher && a.IV == b.IV &&
		a.Version == b.Version && a.UpdatedAt.Equal(b.UpdatedAt)
}
