package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campbot/internal/config"
	"campbot/pkg/logx"
	"campbot/pkg/systemd"
)

const (
	jobDebouncePrune = "debounce.prune"
	jobAuditPrune    = "audit.prune"
	jobWatchdog      = "systemd.watchdog"

	auditPruneTimeout = 30 * time.Second
)

func (a *App) registerHousekeeping(cfg *config.Config) error {
	if err := a.sched.AddInterval(jobDebouncePrune, time.Minute, 5*time.Second, a.pruneDebounce); err != nil {
		return err
	}
	if err := a.sched.AddSchedule(jobAuditPrune, auditPruneSpec(cfg), auditPruneTimeout, a.pruneAudit); err != nil {
		return fmt.Errorf("scheduler.audit_prune: %w", err)
	}
	if !cfg.Systemd.Watchdog {
		return nil
	}
	every, err := systemd.WatchdogInterval()
	switch {
	case err != nil:
		a.log.Warn("systemd watchdog unavailable", logx.Err(err))
		return nil
	case every <= 0:
		a.log.Debug("systemd watchdog not requested by the unit")
		return nil
	}
	if !cfg.Scheduler.Enabled {
		a.log.Warn("systemd.watchdog needs scheduler.enabled; the unit may be restarted by systemd")
	}
	return a.sched.AddInterval(jobWatchdog, every, every, func(context.Context) error {
		_, err := systemd.WatchdogPing()
		return err
	})
}

func (a *App) pruneDebounce(context.Context) error {
	if n := a.core.PruneDebounce(); n > 0 {
		a.log.Debug("debounce pruned", logx.Int("keys", n))
	}
	return nil
}

func (a *App) pruneAudit(ctx context.Context) error {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return errors.New("no config")
	}
	keep, err := auditRetention(cfg)
	if err != nil {
		return err
	}
	n, err := a.store.PruneAudit(ctx, time.Now().Add(-keep))
	if err != nil {
		return err
	}
	a.log.Info("audit pruned", logx.Int("rows", n), logx.Duration("retention", keep))
	return nil
}
