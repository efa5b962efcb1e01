package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const yamlConfig = `
server:
  addr: ":9090"
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
smtp:
  host: smtp.example.com
  port: 587
  username: noreply@example.com
  password: secret
  sender_name: MeetMail
  sender_email: noreply@example.com
meeting:
  location: https://meet.example.com/abc
  host_name: Alex Host
  host_email: alex@example.com
template:
  path: ./email_template.html
rate_limit:
  enabled: true
  window: 60s
  max_requests: 10
dispatch:
  max_attempts: 3
  retry_base: 2s
  retry_max_delay: 10s
storage:
  driver: file
  path: ./meetmail_store
sweep:
  enabled: true
  schedule: "*/5 * * * *"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", yamlConfig)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.SMTP.Host != "smtp.example.com" || cfg.SMTP.SenderAddr != "noreply@example.com" {
		t.Fatalf("smtp section wrong: %+v", cfg.SMTP)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.MaxRequests != 10 {
		t.Fatalf("rate_limit section wrong: %+v", cfg.RateLimit)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage section wrong: %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get must return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"server": {"addr": ":8080"},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"smtp": {"host": "h", "port": 587, "password": "p", "sender_name": "n", "sender_email": "a@b.com"},
		"meeting": {"location": "l", "host_name": "h", "host_email": "h@b.com"},
		"template": {"path": "t.html"},
		"rate_limit": {"enabled": false},
		"dispatch": {}
	}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTP.Port != 587 {
		t.Fatalf("port = %d", cfg.SMTP.Port)
	}
}

func TestLoadSniffsFormatWithoutExtension(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "meetmail.conf", `{"server": {"addr": ":7070"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}

	path = writeConfig(t, "meetmail.cfg", "server:\n  addr: \":7071\"\n")
	cfg, err = NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7071" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", "server:\n  addr: \":8080\"\n  listen_port: 8080\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestDurationAccessors(t *testing.T) {
	t.Parallel()

	if _, err := (DispatchConfig{RetryBase: "nope"}).RetryBaseDelay(); err == nil {
		t.Fatalf("expected error for bad duration")
	}
	if _, err := (SMTPConfig{Timeout: "-5s"}).SubmitTimeout(); err == nil {
		t.Fatalf("expected error for negative duration")
	}

	// Empty fields fall back to the per-field defaults.
	for _, tc := range []struct {
		name string
		got  func() (time.Duration, error)
		want time.Duration
	}{
		{"dispatch.retry_base", DispatchConfig{}.RetryBaseDelay, 2 * time.Second},
		{"dispatch.retry_max_delay", DispatchConfig{}.RetryDelayCap, 10 * time.Second},
		{"dispatch.timeout", DispatchConfig{}.RequestTimeout, 0},
		{"smtp.timeout", SMTPConfig{}.SubmitTimeout, 30 * time.Second},
		{"meeting.duration", MeetingConfig{}.MeetingDuration, 15 * time.Minute},
		{"rate_limit.window", RateLimitConfig{}.WindowDuration, 60 * time.Second},
		{"storage.keep", StorageConfig{}.Retention, 168 * time.Hour},
	} {
		d, err := tc.got()
		if err != nil || d != tc.want {
			t.Fatalf("%s default: got %v, %v; want %v", tc.name, d, err, tc.want)
		}
	}

	d, err := (DispatchConfig{RetryBase: "750ms"}).RetryBaseDelay()
	if err != nil || d != 750*time.Millisecond {
		t.Fatalf("explicit value lost: %v %v", d, err)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("wrong config delivered")
		}
	default:
		t.Fatalf("config not delivered")
	}

	// A full buffer drops the oldest and keeps the newest.
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("expected newest config after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel must be closed after Unsubscribe")
	}
	// publishing after unsubscribe must not panic
	m.publish(cfg)
}
