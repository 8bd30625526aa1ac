package countdown

import (
	"fmt"
	"strconv"
	"time"
)

type Kind string

const (
	KindCountdown Kind = "countdown"
	KindTravel    Kind = "travel"
)

type TargetKind string

const (
	TargetNone  TargetKind = ""
	TargetUser  TargetKind = "user"
	TargetGroup TargetKind = "group"
)

// NotifyTarget is who gets mentioned when an entry completes: nobody, one
// user, or every member of a team.
type NotifyTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
}

func UserTarget(userID int64) NotifyTarget {
	return NotifyTarget{Kind: TargetUser, ID: strconv.FormatInt(userID, 10)}
}

func GroupTarget(name string) NotifyTarget {
	return NotifyTarget{Kind: TargetGroup, ID: name}
}

// UserID returns the target user for TargetUser targets.
func (t NotifyTarget) UserID() (int64, bool) {
	if t.Kind != TargetUser {
		return 0, false
	}
	id, err := strconv.ParseInt(t.ID, 10, 64)
	return id, err == nil
}

func (t NotifyTarget) valid() bool {
	switch t.Kind {
	case TargetNone:
		return t.ID == ""
	case TargetUser:
		_, ok := t.UserID()
		return ok
	case TargetGroup:
		return t.ID != ""
	default:
		return false
	}
}

// Entry is one scheduled event. Entries are never modified after creation.
type Entry struct {
	ID        string
	Tenant    int64
	Channel   int64
	Creator   int64
	CreatedAt time.Time
	StartAt   time.Time
	EndAt     time.Time
	Kind      Kind
	Notify    NotifyTarget
	// Affinity is the owning team; travel entries only.
	Affinity string
}

// Remaining is the time left until EndAt, never negative.
func (e Entry) Remaining(now time.Time) time.Duration {
	return max(e.EndAt.Sub(now), 0)
}

func (e Entry) validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("missing id")
	case e.Kind != KindCountdown && e.Kind != KindTravel:
		return fmt.Errorf("unknown kind %q", e.Kind)
	case !e.EndAt.After(e.StartAt):
		return fmt.Errorf("end %v not after start %v", e.EndAt, e.StartAt)
	case e.EndAt.Sub(e.CreatedAt) > MaxDuration:
		return fmt.Errorf("ends more than %v after creation", MaxDuration)
	case !e.Notify.valid():
		return fmt.Errorf("bad notify target %+v", e.Notify)
	case e.Kind == KindTravel && e.Affinity == "":
		return fmt.Errorf("travel entry without team")
	}
	return nil
}

// Record is the persisted form of an Entry. Times are unix seconds.
type Record struct {
	ID        string        `json:"id"`
	TenantID  int64         `json:"tenant_id"`
	ChannelID int64         `json:"channel_id"`
	CreatorID int64         `json:"creator_id"`
	CreatedAt int64         `json:"created_at"`
	StartAt   *int64        `json:"start_at"`
	EndAt     int64         `json:"end_at"`
	Notify    *NotifyTarget `json:"notify_target,omitempty"`
	Kind      Kind          `json:"kind"`
	Affinity  string        `json:"group_affinity,omitempty"`
}

func (e Entry) record() Record {
	r := Record{
		ID:        e.ID,
		TenantID:  e.Tenant,
		ChannelID: e.Channel,
		CreatorID: e.Creator,
		CreatedAt: e.CreatedAt.Unix(),
		EndAt:     e.EndAt.Unix(),
		Kind:      e.Kind,
		Affinity:  e.Affinity,
	}
	if !e.StartAt.Equal(e.CreatedAt) {
		s := e.StartAt.Unix()
		r.StartAt = &s
	}
	if e.Notify.Kind != TargetNone {
		n := e.Notify
		r.Notify = &n
	}
	return r
}

// entry converts a loaded record; a missing start means the creation time.
func (r Record) entry() (Entry, error) {
	e := Entry{
		ID:        NormalizeID(r.ID),
		Tenant:    r.TenantID,
		Channel:   r.ChannelID,
		Creator:   r.CreatorID,
		CreatedAt: time.Unix(r.CreatedAt, 0),
		EndAt:     time.Unix(r.EndAt, 0),
		Kind:      r.Kind,
		Affinity:  r.Affinity,
	}
	if e.Kind == "" {
		e.Kind = KindCountdown
	}
	e.StartAt = e.CreatedAt
	if r.StartAt != nil {
		e.StartAt = time.Unix(*r.StartAt, 0)
	}
	if r.Notify != nil {
		e.Notify = *r.Notify
	}
	if err := e.validate(); err != nil {
		return Entry{}, fmt.Errorf("record %q: %w", r.ID, err)
	}
	return e, nil
}
