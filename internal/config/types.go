package config

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`

	SMTP      SMTPConfig      `json:"smtp"`
	Meeting   MeetingConfig   `json:"meeting"`
	Template  TemplateConfig  `json:"template"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Dispatch  DispatchConfig  `json:"dispatch"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Sweep   *SweepConfig   `json:"sweep,omitempty"`
}

type ServerConfig struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	// ReadTimeout/WriteTimeout are Go duration strings (e.g. "10s").
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SMTPConfig describes the upstream mail submission endpoint.
//
// Password is intentionally never logged.
type SMTPConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password"`
	SenderName string `json:"sender_name"`
	SenderAddr string `json:"sender_email"`
	// Timeout is a Go duration string for the whole submission call.
	Timeout string `json:"timeout,omitempty"`
	// StartTLS defaults to true; set false only for local test servers.
	StartTLS *bool `json:"starttls,omitempty"`
}

// MeetingConfig fixes the domain constants of the scheduled call.
type MeetingConfig struct {
	// Duration is a Go duration string; defaults to "15m".
	Duration string `json:"duration,omitempty"`
	// HomeTimezone is the IANA zone assumed when the raw meeting time
	// carries no timezone of its own. Defaults to "America/Los_Angeles".
	HomeTimezone string `json:"home_timezone,omitempty"`
	Location     string `json:"location"`
	HostName     string `json:"host_name"`
	HostEmail    string `json:"host_email"`
}

type TemplateConfig struct {
	Path string `json:"path"`
}

// RateLimitConfig controls per-client admission.
//
// Window is a Go duration string (default "60s"); MaxRequests defaults to 10.
type RateLimitConfig struct {
	Enabled     bool   `json:"enabled"`
	Window      string `json:"window,omitempty"`
	MaxRequests int    `json:"max_requests,omitempty"`
}

// DispatchConfig controls transport retry/backoff and overall pacing.
//
// All durations are Go duration strings (e.g. "2s", "10s").
// Defaults (when fields are omitted/zero):
//   - max_attempts: 3
//   - retry_base: "2s"
//   - retry_max_delay: "10s"
//   - rate_per_sec: 0 (outbound pacing disabled)
//   - timeout: "0s" (no overall per-request deadline)
type DispatchConfig struct {
	MaxAttempts   int    `json:"max_attempts,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

// StorageConfig controls the optional delivery-log persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./meetmail_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Keep bounds the retained delivery-log window (default "168h").
	Keep string `json:"keep,omitempty"`
}

// SweepConfig drives the periodic maintenance job (rate-window eviction,
// delivery-log pruning). Schedule is a cron expression.
type SweepConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // default "*/5 * * * *"
}
