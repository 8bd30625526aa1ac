package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"campbot/pkg/logx"
)

// Collection is a typed view of one named collection: a flat JSON list of T.
type Collection[T any] struct {
	store Store
	name  string
	log   logx.Logger
}

func NewCollection[T any](store Store, name string, log logx.Logger) *Collection[T] {
	return &Collection[T]{store: store, name: name, log: log}
}

func (c *Collection[T]) Name() string { return c.name }

// Load returns every saved item. A missing collection is empty.
// A body that does not decode is reported as empty with a warning, and the
// next Save replaces it.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	body, err := c.store.LoadCollection(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.name, err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		c.log.Warn("collection unreadable; starting empty",
			logx.String("collection", c.name),
			logx.Int("bytes", len(body)),
			logx.Err(err),
		)
		return nil, nil
	}
	return items, nil
}

// Save replaces the collection with items.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	body, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.name, err)
	}
	if err := c.store.SaveCollection(ctx, c.name, body); err != nil {
		return fmt.Errorf("save %s: %w", c.name, err)
	}
	return nil
}
