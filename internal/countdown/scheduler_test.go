package countdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func countdownReq(dur string) CountdownRequest {
	return CountdownRequest{Tenant: -100, Channel: 7, Creator: 1, Duration: dur}
}

func TestCountdownFiresOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	e, err := h.s.CreateCountdown(ctx, countdownReq("1m30s"))
	if err != nil {
		t.Fatal(err)
	}
	if e.EndAt.Sub(e.CreatedAt) != 90*time.Second || len(e.ID) != IDLength {
		t.Fatalf("entry = %+v", e)
	}
	if got := h.store.ids(); len(got) != 1 || got[0] != e.ID {
		t.Fatalf("store = %v, want entry persisted before scheduling", got)
	}

	h.clock.Advance(89 * time.Second)
	if h.notes.count(NoticeCompleted, e.ID) != 0 {
		t.Fatal("fired early")
	}
	h.clock.Advance(time.Second)
	h.clock.Advance(time.Hour)

	if n := h.notes.count(NoticeCompleted, e.ID); n != 1 {
		t.Fatalf("completions = %d, want 1", n)
	}
	if len(h.s.List(0)) != 0 || len(h.store.ids()) != 0 {
		t.Fatal("fired entry must leave memory and store")
	}
}

func TestCountdownValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	saves := h.store.saves

	tests := []struct {
		name string
		req  CountdownRequest
	}{
		{"bad duration", countdownReq("1h 30")},
		{"zero", countdownReq("0s")},
		{"too long", countdownReq("25h")},
		{"both targets", CountdownRequest{Duration: "1m", NotifyUser: 5, NotifyGroup: "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.s.CreateCountdown(ctx, tt.req)
			var rej *Rejection
			if !errors.As(err, &rej) || !errors.Is(err, ErrValidation) || rej.Reason == "" {
				t.Fatalf("err = %v, want validation rejection", err)
			}
		})
	}
	if len(h.s.List(0)) != 0 || h.store.saves != saves {
		t.Fatal("rejected requests must not change state")
	}
}

func TestNotReadyBeforeRecover(t *testing.T) {
	t.Parallel()

	s := New(Options{Store: &memStore{}, Clock: newFakeClock(t0)})
	if _, err := s.CreateCountdown(context.Background(), countdownReq("1m")); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestConcurrentCreatesHaveDistinctIDs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	const n = 1000
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := h.s.CreateCountdown(context.Background(), countdownReq("1h"))
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = e.ID
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if len(h.s.List(0)) != n || len(h.store.ids()) != n {
		t.Fatalf("active = %d, stored = %d", len(h.s.List(0)), len(h.store.ids()))
	}
}

func TestIDCollisionRetries(t *testing.T) {
	t.Parallel()

	// first two draws spell AAAAA, then BBBBB
	var mu sync.Mutex
	draws := 0
	intn := func(int) int {
		mu.Lock()
		defer mu.Unlock()
		draws++
		if draws <= 2*IDLength {
			return 0
		}
		return 1
	}
	h := newHarness(t, func(o *Options) { o.IntN = intn })
	ctx := context.Background()

	a, err := h.s.CreateCountdown(ctx, countdownReq("1m"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.s.CreateCountdown(ctx, countdownReq("1m"))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "AAAAA" || b.ID != "BBBBB" {
		t.Fatalf("ids = %s, %s", a.ID, b.ID)
	}
}

func TestRecoverFiresPastDueOnce(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(t0)
	store := &memStore{recs: []Record{
		{ID: "PAST1", TenantID: -100, CreatedAt: t0.Add(-2 * time.Hour).Unix(), EndAt: t0.Add(-time.Hour).Unix(), Kind: KindCountdown},
		{ID: "LIVE1", TenantID: -100, CreatedAt: t0.Add(-time.Minute).Unix(), EndAt: t0.Add(time.Minute).Unix(), Kind: KindCountdown},
		{ID: "LIVE1", TenantID: -100, CreatedAt: t0.Unix(), EndAt: t0.Add(time.Hour).Unix(), Kind: KindCountdown},
		{ID: "BROKE", TenantID: -100, CreatedAt: t0.Unix(), EndAt: t0.Unix() - 10},
	}}
	notes := &recNotifier{}
	s := New(Options{Store: store, Notifier: notes, Clock: clock})
	defer s.Close(context.Background())

	st, err := s.Recover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Fired != 1 || st.Restored != 1 || st.Dropped != 2 {
		t.Fatalf("stats = %+v", st)
	}
	n, ok := notes.find(NoticeCompleted)
	if !ok || n.Entry.ID != "PAST1" || !n.Late {
		t.Fatalf("late completion = %+v", n)
	}
	if got := store.ids(); len(got) != 1 || got[0] != "LIVE1" {
		t.Fatalf("store after recover = %v", got)
	}
	if _, ok := s.Get("past1"); ok {
		t.Fatal("past entry must not be active")
	}

	clock.Advance(2 * time.Minute)
	if notes.count(NoticeCompleted, "PAST1") != 1 {
		t.Fatal("past entry completed more than once")
	}
	if notes.count(NoticeCompleted, "LIVE1") != 1 {
		t.Fatal("restored entry did not fire at its original deadline")
	}

	if _, err := s.Recover(context.Background()); err == nil {
		t.Fatal("second recover must fail")
	}
}

func TestCancelTwiceReportsNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	e, err := h.s.CreateCountdown(ctx, countdownReq("10m"))
	if err != nil {
		t.Fatal(err)
	}
	req := CancelRequest{Tenant: -100, ID: e.ID, Requestor: 9, Privileged: true}

	res, err := h.s.Cancel(ctx, req)
	if err != nil || res.Outcome != Cancelled || res.Entry.ID != e.ID {
		t.Fatalf("first cancel = %+v, %v", res, err)
	}
	saves := h.store.saves

	res, err = h.s.Cancel(ctx, req)
	if err != nil || res.Outcome != NotFound {
		t.Fatalf("second cancel = %+v, %v", res, err)
	}
	if h.store.saves != saves {
		t.Fatal("not-found cancel must not write")
	}

	h.clock.Advance(time.Hour)
	if h.notes.count(NoticeCompleted, "") != 0 {
		t.Fatal("cancelled entry fired")
	}
	if h.clock.pending() != 0 {
		t.Fatal("timer left armed")
	}
}

func TestCancelAuthorization(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	e, err := h.s.CreateCountdown(ctx, countdownReq("10m"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		req  CancelRequest
		want Outcome
	}{
		{"by id without privilege", CancelRequest{Tenant: -100, ID: e.ID}, Forbidden},
		{"other tenant", CancelRequest{Tenant: -200, ID: e.ID, Privileged: true}, NotFound},
		{"recent without team", CancelRequest{Tenant: -100}, Forbidden},
		{"recent with no travel", CancelRequest{Tenant: -100, ID: "recent", Affinity: "red"}, NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.s.Cancel(ctx, tt.req)
			if err != nil || res.Outcome != tt.want {
				t.Fatalf("cancel = %v, %v; want %v", res.Outcome, err, tt.want)
			}
		})
	}
	if _, ok := h.s.Get(e.ID); !ok {
		t.Fatal("entry must survive refused cancels")
	}

	// ids are matched case-insensitively
	res, err := h.s.Cancel(ctx, CancelRequest{Tenant: -100, ID: " " + toLower(e.ID), Privileged: true})
	if err != nil || res.Outcome != Cancelled {
		t.Fatalf("lowercase cancel = %v, %v", res.Outcome, err)
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestSelfServiceGraceWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	old, _ := h.travel(t, "red", "1h", 0)
	h.clock.Advance(10 * time.Second)
	recent, _ := h.travel(t, "red", "2h", 0)

	h.clock.Advance(170 * time.Second)
	res, err := h.s.Cancel(ctx, CancelRequest{Tenant: -100, Affinity: "red", Requestor: 2})
	if err != nil || res.Outcome != Cancelled || res.Entry.ID != recent.ID {
		t.Fatalf("self cancel = %+v, %v", res, err)
	}

	// the older one is now the most recent, and it is past the grace window
	h.clock.Advance(time.Second)
	res, err = h.s.Cancel(ctx, CancelRequest{Tenant: -100, Affinity: "RED", Requestor: 2})
	if err != nil || res.Outcome != GraceExpired || res.Entry.ID != old.ID {
		t.Fatalf("late self cancel = %+v, %v", res, err)
	}
	if _, ok := h.s.Get(old.ID); !ok {
		t.Fatal("grace-expired entry must stay active")
	}
}

func TestGraceWindowCountsWholeSeconds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name  string
		after time.Duration
		want  Outcome
	}{
		{"last second of the window", 180*time.Second + 900*time.Millisecond, Cancelled},
		{"first second after", 181 * time.Second, GraceExpired},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			// created mid-second; the entry records the truncated second
			h.clock.Advance(900 * time.Millisecond)
			h.travel(t, "red", "1h", 0)
			h.clock.Advance(tt.after - 900*time.Millisecond)

			res, err := h.s.Cancel(ctx, CancelRequest{Tenant: -100, Affinity: "red", Requestor: 2})
			if err != nil || res.Outcome != tt.want {
				t.Fatalf("cancel = %+v, %v, want %v", res, err, tt.want)
			}
		})
	}
}

func TestTravelDebounce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()
	req := TravelRequest{Tenant: -100, Channel: 7, Creator: 1, Duration: "30m", Affinity: "red"}

	if _, _, err := h.s.CreateTravel(ctx, req); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(2 * time.Second)
	_, _, err := h.s.CreateTravel(ctx, req)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want throttled", err)
	}
	if len(h.s.List(0)) != 1 {
		t.Fatal("throttled request must not create an entry")
	}

	// another team is not throttled
	other := req
	other.Affinity = "blue"
	if _, _, err := h.s.CreateTravel(ctx, other); err != nil {
		t.Fatal(err)
	}

	h.clock.Advance(4 * time.Second)
	if _, _, err := h.s.CreateTravel(ctx, req); err != nil {
		t.Fatalf("6s later: %v", err)
	}
}

func TestTravelDepartsAtBoundary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	e, v := h.travel(t, "red", "30m", 15)
	if got := e.StartAt.Sub(e.CreatedAt); got != 3*time.Minute {
		t.Fatalf("start offset = %v, want 3m", got)
	}
	if got := e.EndAt.Sub(e.StartAt); got != 30*time.Minute {
		t.Fatalf("window = %v", got)
	}
	if len(v.Parties) != 1 || v.State != SpaceUnset {
		t.Fatalf("single team view = %+v", v)
	}

	h.clock.Advance(179 * time.Second)
	if h.notes.count(NoticeDeparted, e.ID) != 0 {
		t.Fatal("departed early")
	}
	h.clock.Advance(time.Second)
	if h.notes.count(NoticeDeparted, e.ID) != 1 {
		t.Fatal("no departure notice")
	}
	h.clock.Advance(30 * time.Minute)
	if h.notes.count(NoticeCompleted, e.ID) != 1 {
		t.Fatal("no completion")
	}
	if len(h.s.Groups(0)) != 0 {
		t.Fatal("group must be deleted after its last entry")
	}
}

func TestTravelRejectsLongWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, _, err := h.s.CreateTravel(context.Background(), TravelRequest{Tenant: -100, Duration: "24h", Interval: 15, Affinity: "red"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	_, _, err = h.s.CreateTravel(context.Background(), TravelRequest{Tenant: -100, Duration: "1h", Interval: 31, Affinity: "red"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("interval err = %v", err)
	}
	// a rejected request does not consume the cooldown
	if _, _, err := h.s.CreateTravel(context.Background(), TravelRequest{Tenant: -100, Duration: "1h", Affinity: "red"}); err != nil {
		t.Fatal(err)
	}
}

func TestCreatePersistenceFailureRollsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	h.store.setFail(true)
	if _, err := h.s.CreateCountdown(ctx, countdownReq("1m")); !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want persistence failure", err)
	}
	if _, _, err := h.s.CreateTravel(ctx, TravelRequest{Tenant: -100, Duration: "1m", Affinity: "red"}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("travel err = %v", err)
	}
	if len(h.s.List(0)) != 0 || len(h.s.Groups(0)) != 0 || h.clock.pending() != 0 {
		t.Fatal("failed create left state behind")
	}

	// the failed travel did not use up the team's cooldown
	h.store.setFail(false)
	if _, _, err := h.s.CreateTravel(ctx, TravelRequest{Tenant: -100, Duration: "1m", Affinity: "red"}); err != nil {
		t.Fatal(err)
	}
}

func TestCancelPersistenceFailureKeepsEntry(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	e, err := h.s.CreateCountdown(ctx, countdownReq("1m"))
	if err != nil {
		t.Fatal(err)
	}
	h.store.setFail(true)
	if _, err := h.s.Cancel(ctx, CancelRequest{Tenant: -100, ID: e.ID, Privileged: true}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v", err)
	}
	h.store.setFail(false)
	if _, ok := h.s.Get(e.ID); !ok {
		t.Fatal("entry lost after failed cancel")
	}
	h.clock.Advance(time.Minute)
	if h.notes.count(NoticeCompleted, e.ID) != 1 {
		t.Fatal("entry should still fire")
	}
}

func TestFirePersistenceFailureIsRetried(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	e, err := h.s.CreateCountdown(context.Background(), countdownReq("1m"))
	if err != nil {
		t.Fatal(err)
	}
	h.store.setFail(true)
	h.clock.Advance(time.Minute)
	if h.notes.count(NoticeCompleted, e.ID) != 1 {
		t.Fatal("completion must be delivered despite the store")
	}
	if len(h.s.List(0)) != 0 {
		t.Fatal("fired entry must not stay active")
	}

	h.store.setFail(false)
	h.clock.Advance(flushRetry)
	if got := h.store.ids(); len(got) != 0 {
		t.Fatalf("store after retry = %v", got)
	}
	if h.notes.count(NoticeCompleted, e.ID) != 1 {
		t.Fatal("retry must not notify again")
	}
}

func TestCloseStopsTimers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	if _, err := h.s.CreateCountdown(context.Background(), countdownReq("1m")); err != nil {
		t.Fatal(err)
	}
	if err := h.s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Hour)
	if h.notes.count(NoticeCompleted, "") != 0 {
		t.Fatal("closed scheduler fired")
	}
	if len(h.store.ids()) != 1 {
		t.Fatal("close must leave persisted entries alone")
	}
	if _, err := h.s.CreateCountdown(context.Background(), countdownReq("1m")); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}
