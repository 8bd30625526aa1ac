package config

// Config is the whole campbot configuration file.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Countdown CountdownConfig `json:"countdown"`

	// Notifier may be omitted; the pipeline then runs with defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Teams   []TeamConfig  `json:"teams,omitempty"`
	Systemd SystemdConfig `json:"systemd"`
}

type TelegramConfig struct {
	// Token is normally supplied through CAMPBOT_TELEGRAM_TOKEN.
	Token        string  `json:"token,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	LogChatID    int64   `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings and errors into telegram.log_chat_id.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the durable store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data", "audit_retention": "720h" }
type StorageConfig struct {
	Driver         string `json:"driver"`
	Path           string `json:"path"`
	BusyTimeout    string `json:"busy_timeout,omitempty"` // sqlite only
	AuditRetention string `json:"audit_retention,omitempty"`
}

// SchedulerConfig controls the housekeeping cron.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	// AuditPrune is a cron spec, "@every <dur>" or "HH:MM". Default "03:30".
	AuditPrune string `json:"audit_prune,omitempty"`
}

type CountdownConfig struct {
	// Timezone used for travel interval boundaries. Empty means local time.
	Timezone string `json:"timezone,omitempty"`
	// GraceWindow bounds self-service travel cancellation. Default "180s".
	GraceWindow string `json:"grace_window,omitempty"`
	// TravelDebounce is the per-team request cooldown. Default "5s".
	TravelDebounce string `json:"travel_debounce,omitempty"`
	// SpaceTimeout bounds one coordination space operation. Default "15s".
	SpaceTimeout string `json:"space_timeout,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings. There are no retries: a failed send is logged and dropped.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// TeamConfig is one party of the roster. Names are unique per chat.
type TeamConfig struct {
	ChatID  int64   `json:"chat_id"`
	Name    string  `json:"name"`
	Members []int64 `json:"members"`
}

type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}

// DefaultNotifier is what an omitted notifier section means at runtime.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		SendTimeout:     "10s",
		DedupWindow:     "10m",
		DedupMaxEntries: 2000,
	}
}
