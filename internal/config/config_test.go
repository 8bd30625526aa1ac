package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "telegram": {"owner_user_ids": [42], "poll_timeout": "10s"},
  "logging": {"level": "debug", "console": true},
  "storage": {"driver": "sqlite", "path": "./data/campbot.db", "audit_retention": "720h"},
  "scheduler": {"enabled": true, "audit_prune": "03:30"},
  "countdown": {"grace_window": "180s", "travel_debounce": "5s"},
  "teams": [{"chat_id": -100, "name": "Red", "members": [1, 2]}],
  "systemd": {"notify": true}
}`

const sampleYAML = `
telegram:
  owner_user_ids: [42]
  poll_timeout: 10s
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/campbot.db
  audit_retention: 720h
scheduler:
  enabled: true
  audit_prune: "03:30"
countdown:
  grace_window: 180s
  travel_debounce: 5s
teams:
  - chat_id: -100
    name: Red
    members: [1, 2]
systemd:
  notify: true
`

func TestDecodeJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()

	j, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	y, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if changed, _ := SummarizeConfigChange(j, y); len(changed) != 0 {
		t.Fatalf("json and yaml differ in %v", changed)
	}
	if y.Teams[0].Name != "Red" || len(y.Teams[0].Members) != 2 {
		t.Fatalf("teams = %+v", y.Teams)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", `{"telegram": {"tokn": "x"}}`, "unknown field"},
		{"trailing data", `{} {}`, "trailing data"},
		{"bad json", `{`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("config.json", []byte(tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"bad grace", func(c *Config) { c.Countdown.GraceWindow = "soon" }, "countdown.grace_window"},
		{"negative debounce", func(c *Config) { c.Countdown.TravelDebounce = "-1s" }, "countdown.travel_debounce"},
		{"bad tz", func(c *Config) { c.Countdown.Timezone = "Mars/Base" }, "countdown.timezone"},
		{"dup team", func(c *Config) {
			c.Teams = append(c.Teams, TeamConfig{ChatID: -100, Name: "red"})
		}, "duplicate team"},
		{"team without chat", func(c *Config) { c.Teams = []TeamConfig{{Name: "x"}} }, "chat_id and name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Decode("config.json", []byte(sampleJSON))
			if err != nil {
				t.Fatal(err)
			}
			tt.mut(cfg)
			err = Validate(cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMPBOT_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("CAMPBOT_OWNER_USER_IDS", "7,8")
	t.Setenv("CAMPBOT_STORAGE_PATH", "/var/lib/campbot")

	o, err := ParseEnv()
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	o.Apply(cfg)

	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Telegram.OwnerUserIDs[1] != 8 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Storage.Path != "/var/lib/campbot" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestManagerLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager(path)
	m.SetOverrides(Overrides{TelegramToken: "tok"})
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "tok" || m.Get() != cfg {
		t.Fatalf("load did not commit overridden config")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("subscriber should receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg, _ := Decode("config.json", []byte(sampleJSON))
	newCfg, _ := Decode("config.json", []byte(sampleJSON))
	newCfg.Countdown.GraceWindow = "120s"
	newCfg.Teams[0].Members = append(newCfg.Teams[0].Members, 3)
	newCfg.Telegram.Token = "secret"

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"countdown", "teams", "telegram"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected log fields")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "2m", 5*time.Second)
	if err != nil || d != 2*time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "abc", 0); err == nil {
		t.Fatal("expected error")
	}
}
