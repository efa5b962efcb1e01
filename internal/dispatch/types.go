package dispatch

import (
	"time"

	"meetmail/internal/timeparse"
)

// Status is the top-level outcome class of one dispatch.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Machine-readable reason codes attached to rejected/failed results.
const (
	ReasonRateLimited        = "rate_limited"
	ReasonUnparseableTime    = "unparseable_time"
	ReasonTransportExhausted = "transport_exhausted"
	ReasonTransportRejected  = "transport_rejected"
	ReasonInternal           = "internal"
)

// Request is one notification request. It is created at the system boundary
// and consumed exactly once by the engine.
type Request struct {
	RequestID string
	// Identity is the rate-limit key for the caller (typically client IP).
	Identity string

	RecipientName  string
	RecipientEmail string
	// MeetingTime is the raw free-form meeting time text.
	MeetingTime string
}

// Result is the terminal outcome of one dispatch.
type Result struct {
	Status   Status
	Reason   string // empty when delivered
	Attempts int    // transport attempts made (0 when rejected)
	Meeting  timeparse.Range
	Took     time.Duration
	Err      error // underlying cause for failed results
}

func (r Result) Delivered() bool { return r.Status == StatusDelivered }
