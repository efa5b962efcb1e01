package dispatch

import "time"

// Eventbus topics published by the engine.
const (
	TopicAccepted  = "dispatch.accepted"
	TopicRetry     = "dispatch.retry"
	TopicDelivered = "dispatch.delivered"
	TopicRejected  = "dispatch.rejected"
	TopicFailed    = "dispatch.failed"
)

// OutcomeEvent is the payload for terminal topics (delivered/rejected/failed).
type OutcomeEvent struct {
	RequestID string
	Recipient string
	Status    Status
	Reason    string
	Attempts  int
	TookMS    int64
}

// RetryEvent is published before each backoff sleep.
type RetryEvent struct {
	RequestID string
	Attempt   int
	Delay     time.Duration
	Cause     string
}

// AcceptedEvent is published once admission and parsing succeed.
type AcceptedEvent struct {
	RequestID string
	Recipient string
	StartUTC  time.Time
}
