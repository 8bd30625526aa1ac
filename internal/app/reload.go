package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"campbot/internal/config"
	"campbot/internal/eventbus"
	"campbot/pkg/logx"
)

// reloadLoop applies committed config changes to the running components.
func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for more := true; more; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					more = false
				}
			}
			a.applyConfig(c, last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := func(s string) bool { return slices.Contains(sections, s) }

	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if prev.Telegram.Token != next.Telegram.Token || prev.Telegram.PollTimeout != next.Telegram.PollTimeout {
		a.log.Warn("telegram connection settings changed; restart required")
	}
	if prev.Countdown.Timezone != next.Countdown.Timezone || prev.Countdown.SpaceTimeout != next.Countdown.SpaceTimeout {
		a.log.Warn("countdown timezone or space timeout changed; restart required")
	}

	a.logs.Apply(mapLogConfig(next))
	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	a.roster.Apply(mapTeams(next))

	if t, err := mapCountdownTimings(next); err != nil {
		a.log.Warn("invalid countdown config; keeping previous", logx.Err(err))
	} else {
		a.core.SetGraceWindow(t.grace)
		a.core.SetTravelDebounce(t.debounce)
	}

	a.applyNotifier(c, next)
	a.applyScheduler(prev, next)

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyNotifier(c context.Context, next *config.Config) {
	ncfg, err := mapNotifierConfig(next)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	wasEnabled := a.notif.Enabled()
	a.notif.Apply(ncfg)
	switch {
	case wasEnabled && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !wasEnabled && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(context.WithoutCancel(c))
	}
}

// applyScheduler re-registers the audit job when its spec moved. The
// scheduler itself pauses or resumes on Enabled.
func (a *App) applyScheduler(prev, next *config.Config) {
	if auditPruneSpec(prev) != auditPruneSpec(next) {
		if err := a.sched.AddSchedule(jobAuditPrune, auditPruneSpec(next), auditPruneTimeout, a.pruneAudit); err != nil {
			a.log.Warn("invalid scheduler.audit_prune; keeping previous", logx.Err(err))
		}
	}
	a.sched.Apply(mapSchedulerConfig(next))
}
