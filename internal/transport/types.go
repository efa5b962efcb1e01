// Package transport defines the outbound mail submission port consumed by
// the dispatch engine, plus the transient/permanent error classification the
// retry policy is built on.
package transport

import "context"

type Address struct {
	Name  string
	Email string
}

// Message is a fully composed outbound notification. Calendar, when
// non-empty, is an iCalendar document attached alongside the body parts.
type Message struct {
	From    Address
	To      Address
	Cc      []Address
	Subject string
	Text    string
	HTML    string

	Calendar string
}

// Submitter is the upstream mail submission endpoint.
//
// Submit errors are classified with IsPermanent: permanent failures will not
// be retried by callers, everything else is treated as transient.
type Submitter interface {
	Submit(ctx context.Context, msg Message) error
	// Ping reports reachability of the upstream endpoint (health checks).
	Ping(ctx context.Context) error
}
