package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[telegram]
token = "123:abc"
authorized_users = [42]
`

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Aria2.Port != 6800 {
		t.Errorf("expected port 6800, got %d", cfg.Aria2.Port)
	}
	if cfg.Monitor.IntervalSeconds != 5 {
		t.Errorf("expected monitor interval 5, got %d", cfg.Monitor.IntervalSeconds)
	}
	if cfg.Pagination.ItemsPerPage != 5 {
		t.Errorf("expected 5 items per page, got %d", cfg.Pagination.ItemsPerPage)
	}
	if cfg.Database.MaxHistory != 100 {
		t.Errorf("expected max_history 100, got %d", cfg.Database.MaxHistory)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[aria2]
host = "http://10.0.0.2"
secret = "s3cret"

[monitor]
interval = 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Aria2.Host != "http://10.0.0.2" {
		t.Errorf("host not loaded: %s", cfg.Aria2.Host)
	}
	if cfg.Monitor.IntervalSeconds != 2 {
		t.Errorf("monitor interval not loaded: %d", cfg.Monitor.IntervalSeconds)
	}
	// Defaults preserved for untouched sections.
	if cfg.Aria2.Port != 6800 {
		t.Errorf("default port lost: %d", cfg.Aria2.Port)
	}
	if cfg.Notification.IntervalSeconds != 60 {
		t.Errorf("default notification interval lost: %d", cfg.Notification.IntervalSeconds)
	}
}

func TestLoadEnvOverridesAPIBase(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
api_base_url = "https://configured.example/bot"
`)
	t.Setenv("TELEGRAM_API_BASE", "https://env.example/bot")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.APIBaseURL != "https://env.example/bot" {
		t.Errorf("env override not applied: %s", cfg.Telegram.APIBaseURL)
	}
}

func TestValidateRejectsMissingToken(t *testing.T) {
	path := writeConfig(t, `
[telegram]
authorized_users = [42]
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestValidateRejectsEmptyAuthorizedUsers(t *testing.T) {
	path := writeConfig(t, `
[telegram]
token = "123:abc"
authorized_users = []
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "authorized_users") {
		t.Fatalf("expected authorized_users error, got %v", err)
	}
}

func TestValidateAcceptsEmptySecret(t *testing.T) {
	// aria2 daemons without --rpc-secret are legal; a wrong secret is
	// caught by the startup reachability probe instead.
	if _, err := Load(writeConfig(t, minimalConfig)); err != nil {
		t.Fatalf("empty secret should validate, got %v", err)
	}
}

func TestNotifyRecipientsFallsBackToAuthorized(t *testing.T) {
	cfg := Default()
	cfg.Telegram.AuthorizedUsers = []int64{1, 2}
	if got := cfg.NotifyRecipients(); len(got) != 2 || got[0] != 1 {
		t.Errorf("expected fallback to authorized users, got %v", got)
	}
	cfg.Notification.NotifyUsers = []int64{9}
	if got := cfg.NotifyRecipients(); len(got) != 1 || got[0] != 9 {
		t.Errorf("expected explicit notify users, got %v", got)
	}
}
