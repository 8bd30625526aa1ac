package countdown

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 10, 5, 27, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due timers in order on the caller's goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type memStore struct {
	mu    sync.Mutex
	recs  []Record
	fail  bool
	saves int
}

func (m *memStore) Load(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.recs...), nil
}

func (m *memStore) Save(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.saves++
	m.recs = append([]Record(nil), recs...)
	return nil
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memStore) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.recs))
	for i, r := range m.recs {
		out[i] = r.ID
	}
	sort.Strings(out)
	return out
}

type recNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recNotifier) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
	return nil
}

func (r *recNotifier) count(kind NoticeKind, id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Kind == kind && (id == "" || x.Entry.ID == id) {
			n++
		}
	}
	return n
}

func (r *recNotifier) find(kind NoticeKind) (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.notices {
		if x.Kind == kind {
			return x, true
		}
	}
	return Notice{}, false
}

type fakeSpaces struct {
	mu         sync.Mutex
	next       SpaceID
	failNext   int
	created    []SpaceID
	added      map[SpaceID][]int64
	removed    map[SpaceID][]int64
	archived   []SpaceID
	createGate chan struct{}
}

func newFakeSpaces() *fakeSpaces {
	return &fakeSpaces{next: 100, added: map[SpaceID][]int64{}, removed: map[SpaceID][]int64{}}
}

func (f *fakeSpaces) CreateSpace(ctx context.Context, tenant int64, name string) (SpaceID, error) {
	f.mu.Lock()
	gate := f.createGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return 0, errors.New("platform unavailable")
	}
	f.next++
	f.created = append(f.created, f.next)
	return f.next, nil
}

func (f *fakeSpaces) AddMember(_ context.Context, _ int64, space SpaceID, m int64) error {
	f.mu.Lock()
	f.added[space] = append(f.added[space], m)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpaces) RemoveMember(_ context.Context, _ int64, space SpaceID, m int64) error {
	f.mu.Lock()
	f.removed[space] = append(f.removed[space], m)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpaces) ArchiveAndLock(_ context.Context, _ int64, space SpaceID) error {
	f.mu.Lock()
	f.archived = append(f.archived, space)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpaces) snapshot() (created, archived []SpaceID, added, removed map[SpaceID][]int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	added = map[SpaceID][]int64{}
	removed = map[SpaceID][]int64{}
	for k, v := range f.added {
		added[k] = append([]int64(nil), v...)
	}
	for k, v := range f.removed {
		removed[k] = append([]int64(nil), v...)
	}
	return append([]SpaceID(nil), f.created...), append([]SpaceID(nil), f.archived...), added, removed
}

type mapRoster map[string][]int64

func (m mapRoster) Members(_ int64, party string) []int64 { return m[party] }

type harness struct {
	s      *Scheduler
	clock  *fakeClock
	store  *memStore
	notes  *recNotifier
	spaces *fakeSpaces
}

func newHarness(t *testing.T, mut func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(t0),
		store:  &memStore{},
		notes:  &recNotifier{},
		spaces: newFakeSpaces(),
	}
	opts := Options{
		Store:    h.store,
		Notifier: h.notes,
		Spaces:   h.spaces,
		Roster:   mapRoster{"red": {1, 2}, "blue": {3}, "green": {4, 1}},
		Clock:    h.clock,
		Location: time.UTC,
	}
	if mut != nil {
		mut(&opts)
	}
	h.s = New(opts)
	if _, err := h.s.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.s.Close(ctx)
	})
	return h
}

func (h *harness) travel(t *testing.T, team, dur string, interval int) (Entry, GroupView) {
	t.Helper()
	e, v, err := h.s.CreateTravel(context.Background(), TravelRequest{
		Tenant: -100, Channel: 7, Creator: 1, Duration: dur, Interval: interval, Affinity: team,
	})
	if err != nil {
		t.Fatalf("travel %s: %v", team, err)
	}
	return e, v
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
