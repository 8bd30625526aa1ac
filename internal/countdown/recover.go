package countdown

import (
	"context"
	"errors"
	"fmt"

	"campbot/internal/eventbus"
	"campbot/pkg/logx"
)

// RecoverStats summarizes a Recover run.
type RecoverStats struct {
	Restored int
	Fired    int
	Dropped  int
}

// Recover loads persisted entries once at startup. Entries already past
// their end are completed immediately and not kept; the rest are scheduled
// again from the current clock. The surviving set is written back once
// before anything is delivered or scheduled.
func (s *Scheduler) Recover(ctx context.Context) (RecoverStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st RecoverStats
	if s.closed {
		return st, ErrClosed
	}
	if s.recovered {
		return st, errors.New("countdown: already recovered")
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return st, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	now := s.clock.Now()
	var due, pending []Entry
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		e, err := r.entry()
		if err != nil {
			st.Dropped++
			s.log.Warn("dropping unreadable entry", logx.Err(err))
			continue
		}
		if _, dup := seen[e.ID]; dup {
			st.Dropped++
			s.log.Warn("dropping duplicate entry", logx.String("entry", e.ID))
			continue
		}
		seen[e.ID] = struct{}{}
		if !e.EndAt.After(now) {
			due = append(due, e)
			continue
		}
		pending = append(pending, e)
	}

	if err := s.reg.replace(ctx, pending); err != nil {
		return st, err
	}
	s.recovered = true

	for _, e := range due {
		s.deliver(Notice{Kind: NoticeCompleted, Entry: e, Late: true})
		s.publish(eventbus.EntryFired, e)
		st.Fired++
	}
	for _, e := range pending {
		s.armEnd(e)
		if e.Kind == KindTravel {
			if e.StartAt.After(now) {
				s.armStart(e)
			}
			// departed windows are grouped too, like an immediate start
			s.joinLocked(e)
		}
		s.publish(eventbus.EntryRecovered, e)
		st.Restored++
	}

	s.log.Info("entries recovered",
		logx.Int("restored", st.Restored),
		logx.Int("fired", st.Fired),
		logx.Int("dropped", st.Dropped),
	)
	return st, nil
}
