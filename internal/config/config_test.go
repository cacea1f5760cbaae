package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON5WithDefaults(t *testing.T) {
	path := writeConfig(t, `{
		// comments and trailing commas are fine
		telegram: { token: "123:abc", creatorIds: [42], },
		gateway: { webhookSecret: "s3cret" },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || !slices.Equal(cfg.Telegram.CreatorIDs, []int64{42}) {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Gateway.Port != 3000 || cfg.Database.Mode != "standalone" || cfg.IMAP.Mailbox != "INBOX" {
		t.Errorf("defaults lost: %+v %+v %+v", cfg.Gateway, cfg.Database, cfg.IMAP)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.System.InitialStatus != "running" {
		t.Errorf("initialStatus = %q", cfg.System.InitialStatus)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CREATOR_ID", "1, 2")
	t.Setenv("WEBHOOK_SECRET", "env-secret")
	t.Setenv("WEBHOOK_PORT", "8080")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/ups")

	cfg, err := Load(writeConfig(t, `{telegram: {token: "file-token"}}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if !slices.Equal(cfg.Telegram.CreatorIDs, []int64{1, 2}) {
		t.Errorf("creators = %v", cfg.Telegram.CreatorIDs)
	}
	if cfg.Gateway.Port != 8080 || cfg.Gateway.WebhookSecret != "env-secret" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Database.Mode != "managed" || cfg.Database.PostgresDSN == "" {
		t.Errorf("database = %+v", cfg.Database)
	}
}

func TestEnvOverrideBadPort(t *testing.T) {
	t.Setenv("WEBHOOK_PORT", "abc")
	if _, err := Load(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for non-numeric WEBHOOK_PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"no token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"no creators", func(c *Config) { c.Telegram.CreatorIDs = nil }, "creatorIds"},
		{"bad status", func(c *Config) { c.System.InitialStatus = "error" }, "initialStatus"},
		{"managed without dsn", func(c *Config) { c.Database.Mode = "managed" }, "postgresDsn"},
		{"imap incomplete", func(c *Config) { c.IMAP.Enabled = true }, "imap.host"},
		{"bad timezone", func(c *Config) { c.System.Timezone = "Mars/Olympus" }, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Telegram.Token = "t"
			cfg.Telegram.CreatorIDs = []int64{1}
			cfg.Gateway.WebhookSecret = "s"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Default()
	cfg.Telegram.AdminIDs = []int64{7}
	cfg.Digest.Schedule = "0 8 * * *"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.IsAdmin(7) || loaded.DigestSchedule() != "0 8 * * *" {
		t.Errorf("loaded = %+v", loaded.Telegram)
	}
}

func TestApplyReload(t *testing.T) {
	cur := Default()
	cur.Telegram.Token = "keep"
	cur.Telegram.CreatorIDs = []int64{1}

	next := Default()
	next.Telegram.Token = "ignored"
	next.Telegram.AdminIDs = []int64{9}
	next.Digest.Schedule = "@daily"

	cur.ApplyReload(next)
	if cur.Telegram.Token != "keep" {
		t.Error("token is not hot reloadable")
	}
	if !cur.IsAdmin(9) || !cur.IsCreator(1) || cur.IsCreator(9) {
		t.Errorf("admins = %+v", cur.Telegram)
	}
	if cur.DigestSchedule() != "@daily" {
		t.Errorf("schedule = %q", cur.DigestSchedule())
	}
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, `{digest: {schedule: ""}}`)
	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	got := make(chan string, 4)
	w.OnChange(func(cfg *Config) { got <- cfg.DigestSchedule() })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{digest: {schedule: "@hourly"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-got:
		if s != "@hourly" {
			t.Errorf("schedule = %q", s)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload within 3s")
	}
}

func TestWatcherRejectsBadSchedule(t *testing.T) {
	path := writeConfig(t, `{digest: {schedule: "@daily"}}`)
	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	got := make(chan string, 4)
	w.OnChange(func(cfg *Config) { got <- cfg.DigestSchedule() })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{digest: {schedule: "every morning"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Second)
	if err := os.WriteFile(path, []byte(`{digest: {schedule: "0 9 * * *"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-got:
		if s != "0 9 * * *" {
			t.Errorf("first reload carried %q", s)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload within 3s")
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := ParseIDList(" 1, 2,,3,2 ")
	if err != nil || !slices.Equal(ids, []int64{1, 2, 3}) {
		t.Errorf("ParseIDList = %v, %v", ids, err)
	}
	if _, err := ParseIDList("1,x"); err == nil {
		t.Error("expected error")
	}
}
