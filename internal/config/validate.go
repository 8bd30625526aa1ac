package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks values that would otherwise fail deep inside a service.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	dur("storage.audit_retention", cfg.Storage.AuditRetention)

	_, err := LoadLocation("scheduler.timezone", cfg.Scheduler.Timezone)
	add(err)
	_, err = LoadLocation("countdown.timezone", cfg.Countdown.Timezone)
	add(err)
	dur("countdown.grace_window", cfg.Countdown.GraceWindow)
	dur("countdown.travel_debounce", cfg.Countdown.TravelDebounce)
	dur("countdown.space_timeout", cfg.Countdown.SpaceTimeout)

	if n := cfg.Notifier; n != nil {
		dur("notifier.send_timeout", n.SendTimeout)
		dur("notifier.dedup_window", n.DedupWindow)
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.DedupMaxEntries < 0 {
			add(errors.New("notifier: numeric settings must be >= 0"))
		}
	}

	type teamKey struct {
		chat int64
		name string
	}
	seen := map[teamKey]struct{}{}
	for i, t := range cfg.Teams {
		name := strings.TrimSpace(t.Name)
		if t.ChatID == 0 || name == "" {
			add(fmt.Errorf("teams[%d]: chat_id and name are required", i))
			continue
		}
		k := teamKey{t.ChatID, strings.ToLower(name)}
		if _, dup := seen[k]; dup {
			add(fmt.Errorf("teams[%d]: duplicate team %q in chat %d", i, name, t.ChatID))
		}
		seen[k] = struct{}{}
	}

	return errors.Join(errs...)
}
