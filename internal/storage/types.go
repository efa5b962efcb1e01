package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records the terminal outcome of one dispatch.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At        time.Time
	RequestID string
	Recipient string
	Outcome   string // "delivered", "rejected" or "failed"
	Reason    string // machine-readable code; empty when delivered
	Attempts  int
	TookMS    int64
}
