package countdown

import (
	"context"
	"time"
)

// Store persists the full entry list. Save must be atomic.
// storage.Collection[Record] satisfies it.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

type NoticeKind uint8

const (
	// NoticeCompleted is sent once when an entry ends.
	NoticeCompleted NoticeKind = iota
	// NoticeDeparted is sent when a delayed travel entry reaches its start.
	NoticeDeparted
	// NoticeSpaceReady is sent when a shared space was created for a window.
	NoticeSpaceReady
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeCompleted:
		return "completed"
	case NoticeDeparted:
		return "departed"
	case NoticeSpaceReady:
		return "space_ready"
	default:
		return "unknown"
	}
}

// Notice is everything the platform needs to render one message.
type Notice struct {
	Kind  NoticeKind
	Entry Entry
	// Space is the shared space of the entry's window, zero when none exists.
	Space   SpaceID
	Parties []string
	// Late is set for completions delivered at startup after the deadline passed.
	Late bool
}

// Key identifies a notice for de-duplication.
func (n Notice) Key() string { return n.Entry.ID + ":" + n.Kind.String() }

// Notifier hands a notice to the platform. It must return quickly; the
// scheduler calls it while holding its lock.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// SpaceID identifies a shared coordination space on the platform.
type SpaceID int64

// SpaceManager creates and tears down coordination spaces. Calls are made
// outside the scheduler lock and may block.
type SpaceManager interface {
	CreateSpace(ctx context.Context, tenant int64, name string) (SpaceID, error)
	AddMember(ctx context.Context, tenant int64, space SpaceID, member int64) error
	RemoveMember(ctx context.Context, tenant int64, space SpaceID, member int64) error
	ArchiveAndLock(ctx context.Context, tenant int64, space SpaceID) error
}

// Roster lists the individuals of a team.
type Roster interface {
	Members(tenant int64, party string) []int64
}

// GroupView is a snapshot of an interval group.
type GroupView struct {
	Tenant  int64
	StartAt time.Time
	EndAt   time.Time
	Parties []string
	Entries int
	State   SpaceState
	Space   SpaceID
}
