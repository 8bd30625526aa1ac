package app

import (
	"strings"
	"time"

	"campbot/internal/config"
	"campbot/internal/notifier"
	"campbot/internal/storage"
	"campbot/internal/task/scheduler"
	"campbot/internal/teams"
	"campbot/pkg/logx"
)

const (
	defaultAuditRetention = 30 * 24 * time.Hour
	defaultAuditPrune     = "03:30"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled && cfg.Telegram.LogChatID != 0,
			ChatID:     cfg.Telegram.LogChatID,
			ThreadID:   cfg.Logging.Chat.ThreadID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./data"
		if driver == "sqlite" {
			path = "./data/campbot.db"
		}
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := config.DefaultNotifier()
	if cfg.Notifier != nil {
		nc = *cfg.Notifier
	}
	timeout, err := config.ParseDurationField("notifier.send_timeout", nc.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	window, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		SendTimeout:     timeout,
		DedupWindow:     window,
		DedupMaxEntries: nc.DedupMaxEntries,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapTeams(cfg *config.Config) []teams.Team {
	out := make([]teams.Team, 0, len(cfg.Teams))
	for _, t := range cfg.Teams {
		out = append(out, teams.Team{Chat: t.ChatID, Name: t.Name, Members: t.Members})
	}
	return out
}

// countdownTimings are the countdown settings that may change on reload.
type countdownTimings struct {
	grace    time.Duration
	debounce time.Duration
}

func mapCountdownTimings(cfg *config.Config) (countdownTimings, error) {
	grace, err := config.ParseDurationField("countdown.grace_window", cfg.Countdown.GraceWindow)
	if err != nil {
		return countdownTimings{}, err
	}
	deb, err := config.ParseDurationField("countdown.travel_debounce", cfg.Countdown.TravelDebounce)
	if err != nil {
		return countdownTimings{}, err
	}
	return countdownTimings{grace: grace, debounce: deb}, nil
}

func auditRetention(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("storage.audit_retention", cfg.Storage.AuditRetention, defaultAuditRetention)
}

func auditPruneSpec(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Scheduler.AuditPrune); s != "" {
		return s
	}
	return defaultAuditPrune
}
