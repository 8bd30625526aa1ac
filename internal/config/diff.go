package config

import (
	"reflect"
	"sort"
	"strings"

	"campbot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and returns log fields
// describing the new values. Secrets are reported only as "set".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		ot.LogChatID != nt.LogChatID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) {
		mark("telegram",
			logx.Bool("telegram.token_set", nt.Token != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.audit_retention", newCfg.Storage.AuditRetention),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		mark("scheduler",
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.audit_prune", newCfg.Scheduler.AuditPrune),
		)
	}

	if !reflect.DeepEqual(oldCfg.Countdown, newCfg.Countdown) {
		mark("countdown",
			logx.String("countdown.timezone", newCfg.Countdown.Timezone),
			logx.String("countdown.grace_window", newCfg.Countdown.GraceWindow),
			logx.String("countdown.travel_debounce", newCfg.Countdown.TravelDebounce),
		)
	}

	// An omitted notifier section means defaults.
	on, nn := DefaultNotifier(), DefaultNotifier()
	if oldCfg.Notifier != nil {
		on = *oldCfg.Notifier
	}
	if newCfg.Notifier != nil {
		nn = *newCfg.Notifier
	}
	if on != nn {
		mark("notifier",
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Int("notifier.workers", nn.Workers),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.String("notifier.dedup_window", nn.DedupWindow),
		)
	}

	if !reflect.DeepEqual(oldCfg.Teams, newCfg.Teams) {
		members := 0
		for _, t := range newCfg.Teams {
			members += len(t.Members)
		}
		mark("teams",
			logx.Int("teams.count", len(newCfg.Teams)),
			logx.Int("teams.members", members),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		mark("systemd",
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
