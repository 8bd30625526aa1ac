package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// Store is the persistence API used by the rest of campbot.
type Store interface {
	// LoadCollection returns the last saved body, or nil when nothing was saved yet.
	LoadCollection(ctx context.Context, name string) ([]byte, error)
	// SaveCollection atomically replaces the body of a collection.
	SaveCollection(ctx context.Context, name string, body []byte) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	// PruneAudit deletes audit entries older than before and reports how many went.
	PruneAudit(ctx context.Context, before time.Time) (int, error)

	Close() error
}

// AuditEntry records one operator action.
type AuditEntry struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	ActorID int64     `json:"actor_id"`
	ChatID  int64     `json:"chat_id"`
	Action  string    `json:"action"`
	Target  string    `json:"target,omitempty"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}
