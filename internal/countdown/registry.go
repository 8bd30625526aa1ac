package countdown

import (
	"context"
	"fmt"
	"sort"
)

// registry is the in-memory set of active entries mirrored to the Store.
// Callers hold Scheduler.mu.
type registry struct {
	store   Store
	entries map[string]Entry
}

func newRegistry(store Store) *registry {
	return &registry{store: store, entries: map[string]Entry{}}
}

func (r *registry) get(id string) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) len() int { return len(r.entries) }

// records returns the persisted form ordered by end time then id so the
// stored file is stable.
func (r *registry) records() []Record {
	list := r.sorted()
	out := make([]Record, len(list))
	for i, e := range list {
		out[i] = e.record()
	}
	return out
}

func (r *registry) sorted() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndAt.Equal(out[j].EndAt) {
			return out[i].EndAt.Before(out[j].EndAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *registry) flush(ctx context.Context) error {
	if err := r.store.Save(ctx, r.records()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// insert adds e and persists; on failure e is not added.
func (r *registry) insert(ctx context.Context, e Entry) error {
	r.entries[e.ID] = e
	if err := r.flush(ctx); err != nil {
		delete(r.entries, e.ID)
		return err
	}
	return nil
}

// remove deletes id and persists; on failure the entry is restored.
func (r *registry) remove(ctx context.Context, id string) error {
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	delete(r.entries, id)
	if err := r.flush(ctx); err != nil {
		r.entries[id] = e
		return err
	}
	return nil
}

// drop removes id from memory only; the caller flushes.
func (r *registry) drop(id string) { delete(r.entries, id) }

// replace persists exactly entries and, once written, makes them the active set.
func (r *registry) replace(ctx context.Context, entries []Entry) error {
	next := make(map[string]Entry, len(entries))
	for _, e := range entries {
		next[e.ID] = e
	}
	prev := r.entries
	r.entries = next
	if err := r.flush(ctx); err != nil {
		r.entries = prev
		return err
	}
	return nil
}
