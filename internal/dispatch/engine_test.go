package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"meetmail/internal/eventbus"
	"meetmail/internal/invite"
	"meetmail/internal/ratelimit"
	"meetmail/internal/template"
	"meetmail/internal/timeparse"
	"meetmail/internal/transport"
	logx "meetmail/pkg/logx"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	errs  []error // consumed one per Submit; nil means success
	calls []transport.Message
}

func (f *fakeSubmitter) Submit(ctx context.Context, msg transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSubmitter) Ping(ctx context.Context) error { return nil }

func (f *fakeSubmitter) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testHarness struct {
	engine *Engine
	sub    *fakeSubmitter
	sleeps []time.Duration
	events <-chan eventbus.Event
}

func newHarness(t *testing.T, cfg Config, limiter *ratelimit.Limiter, errs ...error) *testHarness {
	t.Helper()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	parser := timeparse.NewWithClock(timeparse.Config{Home: time.UTC}, func() time.Time { return now })
	builder := invite.NewBuilderWithClock(invite.Config{
		Organizer: invite.Attendee{Name: "Alex Host", Email: "alex@example.com"},
		Host:      invite.Attendee{Name: "Alex Host", Email: "alex@example.com"},
		Location:  "https://meet.example.com/abc",
	}, func() time.Time { return now }, func() string { return "uid-1" })
	tmpl := template.FromString("<p>Hi {user_name}, see you at {meeting_time}. Join: {GOOGLE_MEET_LINK_HERE}</p>")

	h := &testHarness{sub: &fakeSubmitter{errs: errs}}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	t.Cleanup(unsub)
	h.events = ch

	eng, err := NewWithClock(cfg, Content{
		Sender:   transport.Address{Name: "MeetMail", Email: "noreply@example.com"},
		Host:     transport.Address{Name: "Alex Host", Email: "alex@example.com"},
		Location: "https://meet.example.com/abc",
	}, Deps{
		Log:       logx.Nop(),
		Limiter:   limiter,
		Parser:    parser,
		Builder:   builder,
		Template:  tmpl,
		Submitter: h.sub,
		Bus:       bus,
	}, func() time.Time { return now }, func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	h.engine = eng
	return h
}

func testRequest() Request {
	return Request{
		RequestID:      "req-1",
		Identity:       "203.0.113.7",
		RecipientName:  "Jordan Lee",
		RecipientEmail: "jordan@example.com",
		MeetingTime:    "November 30 at 2:00 PM EST",
	}
}

func drainEvents(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestSendDelivered(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	res := h.engine.Send(context.Background(), testRequest())
	if !res.Delivered() {
		t.Fatalf("got %+v, want delivered", res)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
	if res.Reason != "" {
		t.Fatalf("reason = %q, want empty", res.Reason)
	}
	if len(h.sleeps) != 0 {
		t.Fatalf("unexpected backoff sleeps: %v", h.sleeps)
	}

	msg := h.sub.calls[0]
	if msg.Subject != "Confirmation: Tech Discovery Call with Jordan Lee" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Hi Jordan Lee") || !strings.Contains(msg.HTML, "November 30 at 2:00 PM EST") {
		t.Fatalf("html not personalized: %q", msg.HTML)
	}
	if !strings.Contains(msg.Calendar, "UID:uid-1") || !strings.Contains(msg.Calendar, "DTSTART:20261130T190000Z") {
		t.Fatalf("calendar payload wrong:\n%s", msg.Calendar)
	}
	if len(msg.Cc) != 1 || msg.Cc[0].Email != "alex@example.com" {
		t.Fatalf("cc = %+v", msg.Cc)
	}

	types := eventTopics(drainEvents(h.events))
	if !containsAll(types, TopicAccepted, TopicDelivered) {
		t.Fatalf("events = %v", types)
	}
}

func TestSendRetriesTransientThenDelivers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, errors.New("connection reset"))

	res := h.engine.Send(context.Background(), testRequest())
	if !res.Delivered() || res.Attempts != 2 {
		t.Fatalf("got %+v, want delivered after 2 attempts", res)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 2*time.Second {
		t.Fatalf("sleeps = %v, want [2s]", h.sleeps)
	}
	types := eventTopics(drainEvents(h.events))
	if !containsAll(types, TopicRetry, TopicDelivered) {
		t.Fatalf("events = %v", types)
	}
}

func TestSendDeliversOnThirdAttempt(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, errors.New("connection reset"), errors.New("connection reset"))

	res := h.engine.Send(context.Background(), testRequest())
	if !res.Delivered() || res.Attempts != 3 {
		t.Fatalf("got %+v, want delivered after 3 attempts", res)
	}
	if h.sub.submitted() != 3 {
		t.Fatalf("submit calls = %d, want 3", h.sub.submitted())
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != 2*time.Second || h.sleeps[1] != 4*time.Second {
		t.Fatalf("sleeps = %v, want strictly increasing [2s 4s]", h.sleeps)
	}
}

func TestSendExhaustsTransientAttempts(t *testing.T) {
	t.Parallel()
	cause := errors.New("i/o timeout")
	h := newHarness(t, Config{}, nil, cause, cause, cause)

	res := h.engine.Send(context.Background(), testRequest())
	if res.Status != StatusFailed || res.Reason != ReasonTransportExhausted {
		t.Fatalf("got %+v, want failed/transport_exhausted", res)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != 2*time.Second || h.sleeps[1] != 4*time.Second {
		t.Fatalf("sleeps = %v, want [2s 4s]", h.sleeps)
	}
	if !errors.Is(res.Err, cause) {
		t.Fatalf("cause lost: %v", res.Err)
	}
}

func TestSendStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, transport.Permanent(errors.New("550 no such user")))

	res := h.engine.Send(context.Background(), testRequest())
	if res.Status != StatusFailed || res.Reason != ReasonTransportRejected {
		t.Fatalf("got %+v, want failed/transport_rejected", res)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
	if len(h.sleeps) != 0 {
		t.Fatalf("permanent error must not back off: %v", h.sleeps)
	}
}

func TestSendRateLimited(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewWithClock(ratelimit.Config{Enabled: true, MaxRequests: 1}, func() time.Time { return now })
	h := newHarness(t, Config{}, limiter)

	if res := h.engine.Send(context.Background(), testRequest()); !res.Delivered() {
		t.Fatalf("first send: %+v", res)
	}
	res := h.engine.Send(context.Background(), testRequest())
	if res.Status != StatusRejected || res.Reason != ReasonRateLimited {
		t.Fatalf("got %+v, want rejected/rate_limited", res)
	}
	if res.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", res.Attempts)
	}
	if h.sub.submitted() != 1 {
		t.Fatalf("rate-limited request must not reach transport")
	}
}

func TestSendUnparseableTime(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil)

	req := testRequest()
	req.MeetingTime = "whenever works for you"
	res := h.engine.Send(context.Background(), req)
	if res.Status != StatusRejected || res.Reason != ReasonUnparseableTime {
		t.Fatalf("got %+v, want rejected/unparseable_time", res)
	}
	var pe *timeparse.ParseError
	if !errors.As(res.Err, &pe) || pe.Input != req.MeetingTime {
		t.Fatalf("parse failure must carry the input: %v", res.Err)
	}
	if h.sub.submitted() != 0 {
		t.Fatalf("unparseable request must not reach transport")
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 5, RetryBase: 2 * time.Second, RetryMaxDelay: 10 * time.Second}.withDefaults()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := backoff(cfg, i+1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSendCanceledDuringBackoff(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, errors.New("transient"), errors.New("transient"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The canceled context surfaces through the injected sleeper.
	res := h.engine.Send(ctx, testRequest())
	if res.Status != StatusFailed || res.Reason != ReasonInternal {
		t.Fatalf("got %+v, want failed/internal", res)
	}
}

func eventTopics(evs []eventbus.Event) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Topic)
	}
	return out
}

func containsAll(haystack []string, want ...string) bool {
	for _, w := range want {
		found := false
		for _, h := range haystack {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
