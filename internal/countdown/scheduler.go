package countdown

import (
	"context"
	"strings"
	"sync"
	"time"

	"campbot/internal/eventbus"
	"campbot/internal/runtime/supervisor"
	"campbot/pkg/debounce"
	"campbot/pkg/logx"
)

const (
	DefaultGraceWindow    = 180 * time.Second
	DefaultTravelDebounce = 5 * time.Second
	DefaultSpaceTimeout   = 15 * time.Second

	flushRetry = 5 * time.Second
)

type Options struct {
	Store    Store
	Notifier Notifier
	// Spaces may be nil; windows then never get a shared space.
	Spaces SpaceManager
	Roster Roster
	Bus    eventbus.Bus
	Log    logx.Logger
	Clock  Clock

	// Location anchors travel interval boundaries. Defaults to time.Local.
	Location       *time.Location
	GraceWindow    time.Duration
	TravelDebounce time.Duration
	SpaceTimeout   time.Duration
	// SpaceName names a new coordination space.
	SpaceName func(GroupView) string
	// IntN draws ids; tests replace it. Defaults to math/rand/v2.IntN.
	IntN func(n int) int
}

type teamKey struct {
	tenant int64
	team   string
}

type timerHandle struct {
	token uint64
	t     Timer
}

// Scheduler owns every active entry, its timers and the interval groups.
//
// Lock order: a group's ops mutex may be held while taking mu, never the
// reverse. Timer callbacks and platform calls run without mu held.
type Scheduler struct {
	store     Store
	notifier  Notifier
	spaces    SpaceManager
	roster    Roster
	bus       eventbus.Bus
	log       logx.Logger
	clock     Clock
	loc       *time.Location
	spaceName func(GroupView) string
	sup       *supervisor.Supervisor
	debounce  *debounce.Debouncer[teamKey]
	ids       idGen

	mu           sync.Mutex
	reg          *registry
	ends         map[string]timerHandle
	starts       map[string]timerHandle
	groups       map[groupKey]*intervalGroup
	seq          uint64
	grace        time.Duration
	spaceTimeout time.Duration
	recovered    bool
	closed       bool
	flushPending bool
}

func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.TravelDebounce <= 0 {
		opts.TravelDebounce = DefaultTravelDebounce
	}
	if opts.SpaceTimeout <= 0 {
		opts.SpaceTimeout = DefaultSpaceTimeout
	}
	if opts.SpaceName == nil {
		opts.SpaceName = defaultSpaceName
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	clock := opts.Clock

	return &Scheduler{
		store:        opts.Store,
		notifier:     opts.Notifier,
		spaces:       opts.Spaces,
		roster:       opts.Roster,
		bus:          opts.Bus,
		log:          log,
		clock:        clock,
		loc:          opts.Location,
		spaceName:    opts.SpaceName,
		sup:          supervisor.New(context.Background(), supervisor.WithLogger(log)),
		debounce:     debounce.New(opts.TravelDebounce, debounce.WithClock[teamKey](clock.Now)),
		ids:          newIDGen(opts.IntN),
		reg:          newRegistry(opts.Store),
		ends:         map[string]timerHandle{},
		starts:       map[string]timerHandle{},
		groups:       map[groupKey]*intervalGroup{},
		grace:        opts.GraceWindow,
		spaceTimeout: opts.SpaceTimeout,
	}
}

func defaultSpaceName(g GroupView) string {
	return "Travel " + g.StartAt.Format("15:04") + "-" + g.EndAt.Format("15:04") + " " + strings.Join(g.Parties, " + ")
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Notice) error { return nil }

// SetGraceWindow changes the self-service cancel window.
func (s *Scheduler) SetGraceWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultGraceWindow
	}
	s.mu.Lock()
	s.grace = d
	s.mu.Unlock()
}

// SetTravelDebounce changes the per-team cooldown for travel requests.
func (s *Scheduler) SetTravelDebounce(d time.Duration) {
	if d <= 0 {
		d = DefaultTravelDebounce
	}
	s.debounce.SetWindow(d)
}

// PruneDebounce forgets teams whose cooldown has passed.
func (s *Scheduler) PruneDebounce() int { return s.debounce.Prune() }

// now is the wall clock at second resolution, which is what gets persisted.
func (s *Scheduler) now() time.Time { return s.clock.Now().Truncate(time.Second) }

func (s *Scheduler) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if !s.recovered {
		return ErrNotReady
	}
	return nil
}

// taken reports whether id is used by an active entry or a live timer.
func (s *Scheduler) taken(id string) bool {
	if _, ok := s.reg.get(id); ok {
		return true
	}
	_, end := s.ends[id]
	_, start := s.starts[id]
	return end || start
}

type CountdownRequest struct {
	Tenant   int64
	Channel  int64
	Creator  int64
	Duration string
	// At most one of NotifyUser and NotifyGroup may be set.
	NotifyUser  int64
	NotifyGroup string
}

// CreateCountdown validates, persists and schedules a countdown.
func (s *Scheduler) CreateCountdown(ctx context.Context, req CountdownRequest) (Entry, error) {
	dur, err := ParseDuration(req.Duration)
	if err != nil {
		return Entry{}, err
	}
	group := strings.TrimSpace(req.NotifyGroup)
	var target NotifyTarget
	switch {
	case req.NotifyUser != 0 && group != "":
		return Entry{}, invalid("notify either a user or a team, not both")
	case req.NotifyUser != 0:
		target = UserTarget(req.NotifyUser)
	case group != "":
		target = GroupTarget(group)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return Entry{}, err
	}

	now := s.now()
	e := Entry{
		ID:        s.ids.next(s.taken),
		Tenant:    req.Tenant,
		Channel:   req.Channel,
		Creator:   req.Creator,
		CreatedAt: now,
		StartAt:   now,
		EndAt:     now.Add(dur),
		Kind:      KindCountdown,
		Notify:    target,
	}
	if err := s.reg.insert(ctx, e); err != nil {
		s.log.Error("countdown not created", logx.Int64("tenant", e.Tenant), logx.Err(err))
		return Entry{}, err
	}
	s.armEnd(e)
	s.publish(eventbus.EntryCreated, e)
	s.log.Info("countdown created", entryFields(e)...)
	return e, nil
}

type TravelRequest struct {
	Tenant   int64
	Channel  int64
	Creator  int64
	Duration string
	// Interval aligns the start to the next multiple of this many minutes (0-30).
	Interval int
	Affinity string
}

// CreateTravel validates, throttles, persists and schedules a travel entry,
// then places it in its interval group. The returned view tells whether other
// teams share the window.
func (s *Scheduler) CreateTravel(ctx context.Context, req TravelRequest) (Entry, GroupView, error) {
	dur, err := ParseDuration(req.Duration)
	if err != nil {
		return Entry{}, GroupView{}, err
	}
	if err := validInterval(req.Interval); err != nil {
		return Entry{}, GroupView{}, err
	}
	team := strings.TrimSpace(req.Affinity)
	if team == "" {
		return Entry{}, GroupView{}, invalid("travel needs a team")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return Entry{}, GroupView{}, err
	}

	now := s.now()
	start := now.Add(WaitUntilBoundary(now.In(s.loc), req.Interval))
	end := start.Add(dur)
	if end.Sub(now) > MaxDuration {
		return Entry{}, GroupView{}, invalid("travel would end more than 24h from now")
	}

	key := teamKey{req.Tenant, strings.ToLower(team)}
	if !s.debounce.Allow(key) {
		return Entry{}, GroupView{}, &Rejection{Kind: ErrThrottled, Reason: "slow down; your team just started a travel"}
	}

	e := Entry{
		ID:        s.ids.next(s.taken),
		Tenant:    req.Tenant,
		Channel:   req.Channel,
		Creator:   req.Creator,
		CreatedAt: now,
		StartAt:   start,
		EndAt:     end,
		Kind:      KindTravel,
		Affinity:  team,
	}
	if err := s.reg.insert(ctx, e); err != nil {
		s.debounce.Reset(key)
		s.log.Error("travel not created", logx.Int64("tenant", e.Tenant), logx.String("team", team), logx.Err(err))
		return Entry{}, GroupView{}, err
	}
	s.armEnd(e)
	if start.After(now) {
		s.armStart(e)
	}
	view := s.joinLocked(e)
	s.publish(eventbus.EntryCreated, e)
	s.log.Info("travel created", append(entryFields(e), logx.Int("parties", len(view.Parties)))...)
	return e, view, nil
}

func (s *Scheduler) armEnd(e Entry) {
	s.ends[e.ID] = s.arm(e.EndAt, func(tok uint64) func() {
		return func() { s.fire(e.ID, tok) }
	})
}

func (s *Scheduler) armStart(e Entry) {
	s.starts[e.ID] = s.arm(e.StartAt, func(tok uint64) func() {
		return func() { s.depart(e.ID, tok) }
	})
}

// arm schedules a callback at the given wall time. The delay is computed
// from the current clock so restarts neither extend nor shorten deadlines.
func (s *Scheduler) arm(at time.Time, cb func(tok uint64) func()) timerHandle {
	s.seq++
	tok := s.seq
	d := max(at.Sub(s.clock.Now()), 0)
	return timerHandle{token: tok, t: s.clock.AfterFunc(d, cb(tok))}
}

func (s *Scheduler) disarmLocked(id string) {
	if h, ok := s.ends[id]; ok {
		h.t.Stop()
		delete(s.ends, id)
	}
	if h, ok := s.starts[id]; ok {
		h.t.Stop()
		delete(s.starts, id)
	}
}

// fire completes an entry. A stale token means the timer was cancelled or
// replaced after it had already been released, so only the current timer
// of a present entry can notify.
func (s *Scheduler) fire(id string, tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.ends[id]
	if !ok || h.token != tok {
		return
	}
	delete(s.ends, id)
	e, ok := s.reg.get(id)
	if !ok {
		return
	}
	if h, ok := s.starts[id]; ok {
		h.t.Stop()
		delete(s.starts, id)
	}

	n := Notice{Kind: NoticeCompleted, Entry: e}
	if g := s.groups[keyOf(e)]; g != nil && g.state == SpaceCreated {
		n.Space = g.space
		n.Parties = g.parties()
	}
	s.deliver(n)
	if e.Kind == KindTravel {
		s.leaveLocked(e)
	}

	// The notice is out, so the removal stands even if the write fails;
	// the full list is rewritten on the next attempt.
	s.reg.drop(id)
	if err := s.reg.flush(s.sup.Context()); err != nil {
		s.log.Error("persist after completion failed; retrying", append(entryFields(e), logx.Err(err))...)
		s.retryFlushLocked()
	}
	s.publish(eventbus.EntryFired, e)
	s.log.Info("entry completed", entryFields(e)...)
}

// depart posts the start notice of a delayed travel entry.
func (s *Scheduler) depart(id string, tok uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.starts[id]
	if !ok || h.token != tok {
		return
	}
	delete(s.starts, id)
	e, ok := s.reg.get(id)
	if !ok {
		return
	}
	n := Notice{Kind: NoticeDeparted, Entry: e}
	if g := s.groups[keyOf(e)]; g != nil {
		n.Parties = g.parties()
		if g.state == SpaceCreated {
			n.Space = g.space
		}
	}
	s.deliver(n)
}

func (s *Scheduler) retryFlushLocked() {
	if s.flushPending || s.closed {
		return
	}
	s.flushPending = true
	s.clock.AfterFunc(flushRetry, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.flushPending = false
		if err := s.reg.flush(s.sup.Context()); err != nil {
			s.log.Error("persist retry failed", logx.Err(err))
			s.retryFlushLocked()
			return
		}
		s.log.Info("persist retry succeeded", logx.Int("entries", s.reg.len()))
	})
}

// deliver is the single place notices leave the scheduler. Failures are
// logged and published, never returned or retried.
func (s *Scheduler) deliver(n Notice) {
	if err := s.notifier.Notify(s.sup.Context(), n); err != nil {
		s.log.Warn("notice delivery failed",
			append(entryFields(n.Entry), logx.String("notice", n.Kind.String()), logx.Err(err))...)
		s.bus.Publish(eventbus.Event{Type: eventbus.DeliveryFailed, Data: n})
	}
}

func (s *Scheduler) publish(typ string, e Entry) {
	s.bus.Publish(eventbus.Event{Type: typ, Data: e})
}

// Get returns an active entry by id.
func (s *Scheduler) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.get(NormalizeID(id))
}

// List returns the active entries of a tenant ordered by end time.
// A zero tenant lists every tenant.
func (s *Scheduler) List(tenant int64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.reg.sorted()
	if tenant == 0 {
		return all
	}
	out := all[:0]
	for _, e := range all {
		if e.Tenant == tenant {
			out = append(out, e)
		}
	}
	return out
}

// Close stops every timer and waits for in-flight space operations.
// Persisted entries are left untouched and resume on the next Recover.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id := range s.ends {
		s.disarmLocked(id)
	}
	for id := range s.starts {
		s.disarmLocked(id)
	}
	s.mu.Unlock()

	err := s.sup.Wait(ctx)
	s.sup.Cancel()
	return err
}

func entryFields(e Entry) []logx.Field {
	return []logx.Field{
		logx.String("entry", e.ID),
		logx.String("kind", string(e.Kind)),
		logx.Int64("tenant", e.Tenant),
		logx.Time("end_at", e.EndAt),
	}
}
