// Package teams holds the per-chat team roster used to resolve a member's
// group affinity.
package teams

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// Resolution is the outcome of ResolveGroupAffinity.
type Resolution uint8

const (
	None Resolution = iota
	Resolved
	Ambiguous
)

func (r Resolution) String() string {
	switch r {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Team is one named party in a chat.
type Team struct {
	Chat    int64
	Name    string
	Members []int64
}

type team struct {
	name    string
	members map[int64]struct{}
}

// Roster is safe for concurrent use. Apply swaps the whole roster.
type Roster struct {
	mu     sync.RWMutex
	byChat map[int64][]team
}

func New(teams []Team) *Roster {
	r := &Roster{}
	r.Apply(teams)
	return r
}

// Apply replaces the roster. Teams with the same chat and name (case
// insensitive) are merged.
func (r *Roster) Apply(teams []Team) {
	next := map[int64][]team{}
	for _, t := range teams {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		list := next[t.Chat]
		i := slices.IndexFunc(list, func(x team) bool { return strings.EqualFold(x.name, name) })
		if i < 0 {
			list = append(list, team{name: name, members: map[int64]struct{}{}})
			i = len(list) - 1
		}
		for _, m := range t.Members {
			list[i].members[m] = struct{}{}
		}
		next[t.Chat] = list
	}

	r.mu.Lock()
	r.byChat = next
	r.mu.Unlock()
}

// ResolveGroupAffinity returns the single team user belongs to in tenant.
// When the user is on several teams the names are returned sorted with
// Ambiguous.
func (r *Roster) ResolveGroupAffinity(tenant, user int64) (string, Resolution, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, t := range r.byChat[tenant] {
		if _, ok := t.members[user]; ok {
			names = append(names, t.name)
		}
	}
	switch len(names) {
	case 0:
		return "", None, nil
	case 1:
		return names[0], Resolved, names
	default:
		sort.Strings(names)
		return "", Ambiguous, names
	}
}

// Lookup returns the canonical spelling of a team name.
func (r *Roster) Lookup(tenant int64, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byChat[tenant] {
		if strings.EqualFold(t.name, strings.TrimSpace(name)) {
			return t.name, true
		}
	}
	return "", false
}

// Members lists the user ids of party in tenant, sorted.
func (r *Roster) Members(tenant int64, party string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byChat[tenant] {
		if !strings.EqualFold(t.name, party) {
			continue
		}
		out := make([]int64, 0, len(t.members))
		for m := range t.members {
			out = append(out, m)
		}
		slices.Sort(out)
		return out
	}
	return nil
}

// Names lists the teams of tenant in configuration order.
func (r *Roster) Names(tenant int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byChat[tenant]))
	for _, t := range r.byChat[tenant] {
		out = append(out, t.name)
	}
	return out
}
