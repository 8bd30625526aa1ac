package countdown

import (
	"context"
	"sort"
	"sync"
	"time"

	"campbot/internal/eventbus"
	"campbot/pkg/logx"
)

// SpaceState tracks the shared space of a window. It moves Unset to Pending,
// then to Created or back to Unset when creation failed. Created is final.
type SpaceState uint8

const (
	SpaceUnset SpaceState = iota
	SpacePending
	SpaceCreated
)

func (st SpaceState) String() string {
	switch st {
	case SpacePending:
		return "pending"
	case SpaceCreated:
		return "created"
	default:
		return "unset"
	}
}

type groupKey struct {
	tenant int64
	start  int64
	end    int64
}

func keyOf(e Entry) groupKey {
	return groupKey{tenant: e.Tenant, start: e.StartAt.Unix(), end: e.EndAt.Unix()}
}

// intervalGroup exists while at least one travel entry uses its window.
// Fields other than ops are guarded by Scheduler.mu.
type intervalGroup struct {
	key     groupKey
	entries map[string]string // entry id -> team
	members map[int64]struct{}
	// gone holds members dropped from the space whose removal has not run yet.
	gone    map[int64]struct{}
	state   SpaceState
	space   SpaceID
	deleted bool

	// ops serializes platform calls against this group's space.
	ops *sync.Mutex
}

func newGroup(key groupKey) *intervalGroup {
	return &intervalGroup{
		key:     key,
		entries: map[string]string{},
		members: map[int64]struct{}{},
		gone:    map[int64]struct{}{},
		ops:     &sync.Mutex{},
	}
}

func (g *intervalGroup) hasParty(team string) bool {
	for _, t := range g.entries {
		if t == team {
			return true
		}
	}
	return false
}

func (g *intervalGroup) parties() []string {
	set := map[string]struct{}{}
	for _, t := range g.entries {
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (g *intervalGroup) view() GroupView {
	return GroupView{
		Tenant:  g.key.tenant,
		StartAt: time.Unix(g.key.start, 0),
		EndAt:   time.Unix(g.key.end, 0),
		Parties: g.parties(),
		Entries: len(g.entries),
		State:   g.state,
		Space:   g.space,
	}
}

// membersOf lists every individual of the given teams, without duplicates.
func (s *Scheduler) membersOf(tenant int64, teams []string) []int64 {
	if s.roster == nil {
		return nil
	}
	seen := map[int64]struct{}{}
	var out []int64
	for _, t := range teams {
		for _, id := range s.roster.Members(tenant, t) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Groups returns the interval groups of a tenant; zero lists all.
func (s *Scheduler) Groups(tenant int64) []GroupView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GroupView, 0, len(s.groups))
	for _, g := range s.groups {
		if tenant == 0 || g.key.tenant == tenant {
			out = append(out, g.view())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].EndAt.Before(out[j].EndAt)
	})
	return out
}

// joinLocked adds a travel entry to the group of its window. The second
// distinct team moves the space from Unset to Pending, exactly once per group.
func (s *Scheduler) joinLocked(e Entry) GroupView {
	key := keyOf(e)
	g := s.groups[key]
	if g == nil {
		g = newGroup(key)
		s.groups[key] = g
	}
	newParty := !g.hasParty(e.Affinity)
	g.entries[e.ID] = e.Affinity

	switch {
	case g.state == SpaceUnset && len(g.parties()) >= 2 && s.spaces != nil:
		g.state = SpacePending
		s.goSpace("space.create", g, func(ctx context.Context) { s.createSpace(ctx, g) })
	case g.state == SpaceCreated && newParty:
		var added []int64
		for _, id := range s.membersOf(key.tenant, []string{e.Affinity}) {
			if _, ok := g.members[id]; ok {
				continue
			}
			g.members[id] = struct{}{}
			if _, ok := g.gone[id]; ok {
				// removal still queued; cancel it and the member stays in
				delete(g.gone, id)
				continue
			}
			added = append(added, id)
		}
		if len(added) > 0 {
			space := g.space
			s.goSpace("space.add", g, func(ctx context.Context) { s.addMembers(ctx, g, space, added) })
		}
	}
	return g.view()
}

// leaveLocked removes a travel entry from its group. The last entry out
// deletes the group and archives its space if one was created.
func (s *Scheduler) leaveLocked(e Entry) {
	key := keyOf(e)
	g := s.groups[key]
	if g == nil {
		return
	}
	team, ok := g.entries[e.ID]
	if !ok {
		return
	}
	delete(g.entries, e.ID)

	if len(g.entries) == 0 {
		delete(s.groups, key)
		g.deleted = true
		if g.state == SpaceCreated {
			space := g.space
			for id := range g.gone {
				g.members[id] = struct{}{}
			}
			members := sortedIDs(g.members)
			g.members = map[int64]struct{}{}
			g.gone = map[int64]struct{}{}
			s.goSpace("space.archive", g, func(ctx context.Context) { s.archiveSpace(ctx, key.tenant, space, members) })
		}
		return
	}

	// a team that left entirely loses the members no remaining team covers
	if g.state == SpaceCreated && !g.hasParty(team) {
		keep := map[int64]struct{}{}
		for _, id := range s.membersOf(key.tenant, g.parties()) {
			keep[id] = struct{}{}
		}
		var gone []int64
		for id := range g.members {
			if _, ok := keep[id]; !ok {
				delete(g.members, id)
				g.gone[id] = struct{}{}
				gone = append(gone, id)
			}
		}
		if len(gone) > 0 {
			space := g.space
			s.goSpace("space.remove", g, func(ctx context.Context) { s.removeMembers(ctx, g, space, gone) })
		}
	}
}

// goSpace runs a platform call for g in the background, one at a time per group.
func (s *Scheduler) goSpace(name string, g *intervalGroup, fn func(ctx context.Context)) {
	timeout := s.spaceTimeout
	s.sup.Go0(name, func(ctx context.Context) {
		g.ops.Lock()
		defer g.ops.Unlock()
		opCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		fn(opCtx)
	})
}

func (s *Scheduler) createSpace(ctx context.Context, g *intervalGroup) {
	s.mu.Lock()
	if g.deleted {
		s.mu.Unlock()
		return
	}
	view := g.view()
	s.mu.Unlock()
	name := s.spaceName(view)

	id, err := s.spaces.CreateSpace(ctx, view.Tenant, name)

	s.mu.Lock()
	if err != nil {
		if !g.deleted {
			g.state = SpaceUnset
		}
		s.mu.Unlock()
		s.log.Warn("coordination space not created",
			logx.Int64("tenant", view.Tenant),
			logx.Strings("parties", view.Parties),
			logx.Err(err),
		)
		s.bus.Publish(eventbus.Event{Type: eventbus.DeliveryFailed, Data: view})
		return
	}
	if g.deleted {
		// every entry left while the space was being created
		s.mu.Unlock()
		s.archiveSpace(ctx, view.Tenant, id, nil)
		return
	}
	if parties := g.parties(); len(parties) < 2 {
		// back to one team; the next distinct team triggers a new space
		g.state = SpaceUnset
		s.mu.Unlock()
		s.log.Info("coordination space dropped, one party left",
			logx.Int64("tenant", view.Tenant),
			logx.Strings("parties", parties),
		)
		s.archiveSpace(ctx, view.Tenant, id, nil)
		return
	}

	g.state = SpaceCreated
	g.space = id
	parties := g.parties()
	members := s.membersOf(view.Tenant, parties)
	for _, m := range members {
		g.members[m] = struct{}{}
	}
	s.deliver(Notice{Kind: NoticeSpaceReady, Entry: s.firstEntryLocked(g), Space: id, Parties: parties})
	view = g.view()
	s.mu.Unlock()

	s.log.Info("coordination space created",
		logx.Int64("tenant", view.Tenant),
		logx.Int64("space", int64(id)),
		logx.Strings("parties", parties),
		logx.Int("members", len(members)),
	)
	s.bus.Publish(eventbus.Event{Type: eventbus.SpaceCreated, Data: view})
	for _, m := range members {
		if err := s.spaces.AddMember(ctx, view.Tenant, id, m); err != nil {
			s.log.Warn("add member failed", logx.Int64("space", int64(id)), logx.Int64("member", m), logx.Err(err))
		}
	}
}

// firstEntryLocked returns the earliest created entry of g, used as the
// anchor of group-wide notices.
func (s *Scheduler) firstEntryLocked(g *intervalGroup) Entry {
	var first Entry
	for id := range g.entries {
		e, ok := s.reg.get(id)
		if !ok {
			continue
		}
		if first.ID == "" || e.CreatedAt.Before(first.CreatedAt) ||
			(e.CreatedAt.Equal(first.CreatedAt) && e.ID < first.ID) {
			first = e
		}
	}
	return first
}

// live reports whether space is still the current space of g.
func (s *Scheduler) live(g *intervalGroup, space SpaceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !g.deleted && g.state == SpaceCreated && g.space == space
}

func (s *Scheduler) addMembers(ctx context.Context, g *intervalGroup, space SpaceID, ids []int64) {
	if !s.live(g, space) {
		return
	}
	for _, m := range ids {
		if err := s.spaces.AddMember(ctx, g.key.tenant, space, m); err != nil {
			s.log.Warn("add member failed", logx.Int64("space", int64(space)), logx.Int64("member", m), logx.Err(err))
		}
	}
}

// removeMembers runs even after the group was deleted. Each queued id is
// removed once, here or by the archive, whichever claims it first.
func (s *Scheduler) removeMembers(ctx context.Context, g *intervalGroup, space SpaceID, ids []int64) {
	s.mu.Lock()
	claimed := ids[:0:0]
	for _, id := range ids {
		if _, ok := g.gone[id]; ok {
			delete(g.gone, id)
			claimed = append(claimed, id)
		}
	}
	s.mu.Unlock()
	for _, m := range claimed {
		if err := s.spaces.RemoveMember(ctx, g.key.tenant, space, m); err != nil {
			s.log.Warn("remove member failed", logx.Int64("space", int64(space)), logx.Int64("member", m), logx.Err(err))
		}
	}
}

func (s *Scheduler) archiveSpace(ctx context.Context, tenant int64, space SpaceID, members []int64) {
	if err := s.spaces.ArchiveAndLock(ctx, tenant, space); err != nil {
		s.log.Warn("archive space failed", logx.Int64("space", int64(space)), logx.Err(err))
	}
	for _, m := range members {
		if err := s.spaces.RemoveMember(ctx, tenant, space, m); err != nil {
			s.log.Warn("remove member failed", logx.Int64("space", int64(space)), logx.Int64("member", m), logx.Err(err))
		}
	}
	s.log.Info("coordination space archived", logx.Int64("tenant", tenant), logx.Int64("space", int64(space)))
	s.bus.Publish(eventbus.Event{Type: eventbus.SpaceArchived, Data: space})
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
