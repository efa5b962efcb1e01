package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration-string fields are parsed through typed accessors on each config
// section so the defaults live next to the field they belong to. Empty input
// yields the section's default; negative values are rejected.

func (c SMTPConfig) SubmitTimeout() (time.Duration, error) {
	return fieldDuration("smtp.timeout", c.Timeout, 30*time.Second)
}

func (c MeetingConfig) MeetingDuration() (time.Duration, error) {
	return fieldDuration("meeting.duration", c.Duration, 15*time.Minute)
}

func (c RateLimitConfig) WindowDuration() (time.Duration, error) {
	return fieldDuration("rate_limit.window", c.Window, 60*time.Second)
}

func (c DispatchConfig) RetryBaseDelay() (time.Duration, error) {
	return fieldDuration("dispatch.retry_base", c.RetryBase, 2*time.Second)
}

func (c DispatchConfig) RetryDelayCap() (time.Duration, error) {
	return fieldDuration("dispatch.retry_max_delay", c.RetryMaxDelay, 10*time.Second)
}

// RequestTimeout is the overall per-send deadline; zero disables it.
func (c DispatchConfig) RequestTimeout() (time.Duration, error) {
	return fieldDuration("dispatch.timeout", c.Timeout, 0)
}

func (c StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	return fieldDuration("storage.busy_timeout", c.BusyTimeout, 0)
}

// Retention is how far back the delivery log is kept before the sweep
// prunes it.
func (c StorageConfig) Retention() (time.Duration, error) {
	return fieldDuration("storage.keep", c.Keep, 168*time.Hour)
}

func (c ServerConfig) ReadTimeoutDuration() (time.Duration, error) {
	return fieldDuration("server.read_timeout", c.ReadTimeout, 0)
}

func (c ServerConfig) WriteTimeoutDuration() (time.Duration, error) {
	return fieldDuration("server.write_timeout", c.WriteTimeout, 0)
}

func fieldDuration(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative, got %q", field, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
