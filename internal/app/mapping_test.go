package app

import (
	"testing"
	"time"

	"meetmail/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		SMTP: config.SMTPConfig{
			Host:       "smtp.example.com",
			Port:       587,
			Password:   "secret",
			SenderName: "MeetMail",
			SenderAddr: "noreply@example.com",
		},
		Meeting: config.MeetingConfig{
			Location:  "https://meet.example.com/abc",
			HostName:  "Alex Host",
			HostEmail: "alex@example.com",
		},
	}
}

func TestMapSMTPConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	sc, err := mapSMTPConfig(cfg)
	if err != nil {
		t.Fatalf("mapSMTPConfig: %v", err)
	}
	if sc.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v, want 30s default", sc.Timeout)
	}
	if !sc.StartTLS {
		t.Fatalf("starttls must default to true")
	}

	cfg.SMTP.Host = "  "
	if _, err := mapSMTPConfig(cfg); err == nil {
		t.Fatalf("expected error for missing host")
	}
}

func TestMapDispatchConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Dispatch = config.DispatchConfig{MaxAttempts: 5, RetryBase: "1s", RetryMaxDelay: "8s"}
	dc, err := mapDispatchConfig(cfg)
	if err != nil {
		t.Fatalf("mapDispatchConfig: %v", err)
	}
	if dc.MaxAttempts != 5 || dc.RetryBase != time.Second || dc.RetryMaxDelay != 8*time.Second {
		t.Fatalf("mapped config wrong: %+v", dc)
	}

	cfg.Dispatch.RetryBase = "soon"
	if _, err := mapDispatchConfig(cfg); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestMapTimeparseConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Meeting.HomeTimezone = "America/New_York"
	cfg.Meeting.Duration = "30m"
	tp, err := mapTimeparseConfig(cfg)
	if err != nil {
		t.Fatalf("mapTimeparseConfig: %v", err)
	}
	if tp.Home == nil || tp.Home.String() != "America/New_York" {
		t.Fatalf("home = %v", tp.Home)
	}
	if tp.MeetingDuration != 30*time.Minute {
		t.Fatalf("duration = %v", tp.MeetingDuration)
	}

	cfg.Meeting.HomeTimezone = "Mars/Olympus"
	if _, err := mapTimeparseConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	if _, enabled, err := mapStorageConfig(cfg); err != nil || enabled {
		t.Fatalf("nil storage section must be disabled, got enabled=%v err=%v", enabled, err)
	}

	cfg.Storage = &config.StorageConfig{Driver: "none"}
	if _, enabled, _ := mapStorageConfig(cfg); enabled {
		t.Fatalf("driver none must be disabled")
	}

	cfg.Storage = &config.StorageConfig{Driver: "File", Path: "./store"}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		t.Fatalf("file driver must be enabled: %v", err)
	}
	if sc.Driver != "file" {
		t.Fatalf("driver must be normalized, got %q", sc.Driver)
	}
}

func TestMapServerConfigRateHints(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	rl, err := mapRateLimitConfig(cfg)
	if err != nil {
		t.Fatalf("mapRateLimitConfig: %v", err)
	}
	sc, err := mapServerConfig(cfg, rl)
	if err != nil {
		t.Fatalf("mapServerConfig: %v", err)
	}
	if sc.RateWindowSeconds != 60 || sc.RateMaxRequests != 10 {
		t.Fatalf("rate hints = %d/%d, want 60/10", sc.RateWindowSeconds, sc.RateMaxRequests)
	}
}
