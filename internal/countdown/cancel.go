package countdown

import (
	"context"
	"strings"

	"campbot/internal/eventbus"
	"campbot/pkg/logx"
)

// Recent selects the requester's latest travel entry instead of an id.
const Recent = "RECENT"

type CancelRequest struct {
	Tenant int64
	// ID of the entry, or empty / "recent" for self-service cancellation.
	ID        string
	Requestor int64
	// Affinity is the requester's team, used by self-service cancellation.
	Affinity   string
	Privileged bool
}

type CancelResult struct {
	Outcome Outcome
	// Entry is set for Cancelled and GraceExpired.
	Entry Entry
}

// Cancel removes an entry before it fires.
//
// A privileged requester may cancel any entry of its tenant by id. Anyone may
// cancel the latest travel entry of their own team while it is younger than
// the grace window. Cancelling a missing entry reports NotFound. The only
// error is a failed store write, in which case nothing changed.
func (s *Scheduler) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return CancelResult{}, err
	}

	var e Entry
	id := NormalizeID(req.ID)
	if id == "" || id == Recent {
		team := strings.TrimSpace(req.Affinity)
		if team == "" {
			return CancelResult{Outcome: Forbidden}, nil
		}
		var ok bool
		e, ok = s.recentTravelLocked(req.Tenant, team)
		if !ok {
			return CancelResult{Outcome: NotFound}, nil
		}
		if s.now().Sub(e.CreatedAt) > s.grace {
			return CancelResult{Outcome: GraceExpired, Entry: e}, nil
		}
	} else {
		if !req.Privileged {
			return CancelResult{Outcome: Forbidden}, nil
		}
		var ok bool
		e, ok = s.reg.get(id)
		if !ok || e.Tenant != req.Tenant {
			return CancelResult{Outcome: NotFound}, nil
		}
	}

	if err := s.reg.remove(ctx, e.ID); err != nil {
		s.log.Error("cancel not persisted", append(entryFields(e), logx.Err(err))...)
		return CancelResult{}, err
	}
	s.disarmLocked(e.ID)
	if e.Kind == KindTravel {
		s.leaveLocked(e)
	}
	s.publish(eventbus.EntryCancelled, e)
	s.log.Info("entry cancelled",
		append(entryFields(e), logx.Int64("by", req.Requestor), logx.Bool("privileged", req.Privileged))...)
	return CancelResult{Outcome: Cancelled, Entry: e}, nil
}

// recentTravelLocked finds the most recently created travel entry of a team.
func (s *Scheduler) recentTravelLocked(tenant int64, team string) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for _, e := range s.reg.entries {
		if e.Kind != KindTravel || e.Tenant != tenant || !strings.EqualFold(e.Affinity, team) {
			continue
		}
		if !found || e.CreatedAt.After(best.CreatedAt) ||
			(e.CreatedAt.Equal(best.CreatedAt) && e.ID > best.ID) {
			best, found = e, true
		}
	}
	return best, found
}
