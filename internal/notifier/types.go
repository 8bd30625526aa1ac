package notifier

import (
	"context"
	"time"

	"campbot/internal/countdown"
)

// Config controls the pipeline. Zero values fall back to defaults.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Sender renders and posts one notice on the platform.
type Sender interface {
	Deliver(ctx context.Context, n countdown.Notice) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n countdown.Notice) error

func (f SenderFunc) Deliver(ctx context.Context, n countdown.Notice) error { return f(ctx, n) }

type HistoryItem struct {
	At    time.Time
	Key   string
	Error string
}

// NoticeEvent is the payload of notifier.* bus events.
type NoticeEvent struct {
	Key    string    `json:"key"`
	Kind   string    `json:"kind"`
	Entry  string    `json:"entry"`
	Tenant int64     `json:"tenant"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}

func eventOf(n countdown.Notice, at time.Time, err error) NoticeEvent {
	ev := NoticeEvent{
		Key:    n.Key(),
		Kind:   n.Kind.String(),
		Entry:  n.Entry.ID,
		Tenant: n.Entry.Tenant,
		At:     at,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
