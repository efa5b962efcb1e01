// Package dispatch is the notification dispatch engine. It owns the request
// pipeline: admission, meeting-time normalization, invite construction,
// message composition and the retrying submit into the mail transport.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"meetmail/internal/eventbus"
	"meetmail/internal/invite"
	"meetmail/internal/ratelimit"
	"meetmail/internal/template"
	"meetmail/internal/timeparse"
	"meetmail/internal/transport"
	logx "meetmail/pkg/logx"
)

// Config is the engine's retry and pacing policy.
type Config struct {
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// RatePerSec paces outbound submits across all requests. 0 disables.
	RatePerSec int
	// Timeout bounds one whole dispatch. 0 disables.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// Content carries the fixed parts of every outbound message.
type Content struct {
	Sender   transport.Address
	Host     transport.Address
	Location string
}

// Deps are the engine's collaborators. Limiter and Bus may be nil.
type Deps struct {
	Log       logx.Logger
	Limiter   *ratelimit.Limiter
	Parser    *timeparse.Parser
	Builder   *invite.Builder
	Template  *template.Template
	Submitter transport.Submitter
	Bus       eventbus.Bus
}

type Engine struct {
	log     logx.Logger
	limiter *ratelimit.Limiter
	parser  *timeparse.Parser
	builder *invite.Builder
	tmpl    *template.Template
	sub     transport.Submitter
	bus     eventbus.Bus
	content Content

	mu    sync.RWMutex
	cfg   Config
	pacer *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, content Content, d Deps) (*Engine, error) {
	return NewWithClock(cfg, content, d, time.Now, sleepCtx)
}

// NewWithClock injects the time source and backoff sleeper for tests.
func NewWithClock(cfg Config, content Content, d Deps, now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) (*Engine, error) {
	if d.Parser == nil {
		return nil, errors.New("dispatch: parser is required")
	}
	if d.Builder == nil {
		return nil, errors.New("dispatch: invite builder is required")
	}
	if d.Template == nil {
		return nil, errors.New("dispatch: template is required")
	}
	if d.Submitter == nil {
		return nil, errors.New("dispatch: submitter is required")
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		log:     log,
		limiter: d.Limiter,
		parser:  d.Parser,
		builder: d.Builder,
		tmpl:    d.Template,
		sub:     d.Submitter,
		bus:     d.Bus,
		content: content,
		now:     now,
		sleep:   sleep,
	}
	e.Apply(cfg)
	return e, nil
}

// Apply installs a new retry/pacing policy. Safe for concurrent use;
// in-flight dispatches keep the policy they started with.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	var pacer *rate.Limiter
	if cfg.RatePerSec > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	e.mu.Lock()
	e.cfg = cfg
	e.pacer = pacer
	e.mu.Unlock()
}

func (e *Engine) policy() (Config, *rate.Limiter) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.pacer
}

// Send runs one request through the full pipeline and returns its terminal
// result. It blocks across retries; callers wanting a bound pass a deadline
// via ctx or configure Timeout.
func (e *Engine) Send(ctx context.Context, req Request) Result {
	start := e.now()
	cfg, pacer := e.policy()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if e.limiter != nil && !e.limiter.Admit(req.Identity) {
		e.log.Info("request rate limited",
			logx.String("request_id", req.RequestID),
			logx.String("identity", req.Identity))
		return e.finish(req, start, Result{Status: StatusRejected, Reason: ReasonRateLimited})
	}

	rng, err := e.parser.Parse(req.MeetingTime)
	if err != nil {
		e.log.Info("meeting time not parseable",
			logx.String("request_id", req.RequestID),
			logx.String("raw", req.MeetingTime))
		return e.finish(req, start, Result{Status: StatusRejected, Reason: ReasonUnparseableTime, Err: err})
	}

	inv := e.builder.Build(req.RecipientName, req.RecipientEmail, rng)
	msg := e.compose(req, inv)

	e.publish(TopicAccepted, AcceptedEvent{
		RequestID: req.RequestID,
		Recipient: req.RecipientEmail,
		StartUTC:  rng.Start,
	})

	res := e.submitWithRetry(ctx, cfg, pacer, req, msg)
	res.Meeting = rng
	return e.finish(req, start, res)
}

func (e *Engine) submitWithRetry(ctx context.Context, cfg Config, pacer *rate.Limiter, req Request, msg transport.Message) Result {
	for attempt := 1; ; attempt++ {
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				return Result{Status: StatusFailed, Reason: ReasonInternal, Attempts: attempt - 1, Err: err}
			}
		}

		dispatchAttempts.Inc()
		err := e.sub.Submit(ctx, msg)
		if err == nil {
			return Result{Status: StatusDelivered, Attempts: attempt}
		}

		if transport.IsPermanent(err) {
			e.log.Warn("transport rejected message",
				logx.String("request_id", req.RequestID),
				logx.Int("attempt", attempt),
				logx.Err(err))
			return Result{Status: StatusFailed, Reason: ReasonTransportRejected, Attempts: attempt, Err: err}
		}
		if attempt >= cfg.MaxAttempts {
			return Result{Status: StatusFailed, Reason: ReasonTransportExhausted, Attempts: attempt, Err: err}
		}

		delay := backoff(cfg, attempt)
		e.log.Warn("transport attempt failed, retrying",
			logx.String("request_id", req.RequestID),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err))
		e.publish(TopicRetry, RetryEvent{
			RequestID: req.RequestID,
			Attempt:   attempt,
			Delay:     delay,
			Cause:     err.Error(),
		})
		if serr := e.sleep(ctx, delay); serr != nil {
			return Result{Status: StatusFailed, Reason: ReasonInternal, Attempts: attempt, Err: serr}
		}
	}
}

func (e *Engine) compose(req Request, inv invite.Invite) transport.Message {
	html := e.tmpl.Personalize(req.RecipientName, req.MeetingTime, e.content.Location)
	text := "Hi " + req.RecipientName + ", your meeting is confirmed for " + req.MeetingTime +
		". A calendar invitation has been sent separately."
	return transport.Message{
		From:     e.content.Sender,
		To:       transport.Address{Name: req.RecipientName, Email: req.RecipientEmail},
		Cc:       []transport.Address{e.content.Host},
		Subject:  "Confirmation: Tech Discovery Call with " + req.RecipientName,
		Text:     text,
		HTML:     html,
		Calendar: inv.ICS(),
	}
}

func (e *Engine) finish(req Request, start time.Time, res Result) Result {
	res.Took = e.now().Sub(start)
	tookMS := res.Took.Milliseconds()

	dispatchResults.WithLabelValues(string(res.Status), res.Reason).Inc()
	dispatchDuration.WithLabelValues(string(res.Status)).Observe(res.Took.Seconds())

	topic := TopicFailed
	switch res.Status {
	case StatusDelivered:
		topic = TopicDelivered
	case StatusRejected:
		topic = TopicRejected
	}
	e.publish(topic, OutcomeEvent{
		RequestID: req.RequestID,
		Recipient: req.RecipientEmail,
		Status:    res.Status,
		Reason:    res.Reason,
		Attempts:  res.Attempts,
		TookMS:    tookMS,
	})

	switch res.Status {
	case StatusDelivered:
		e.log.Info("notification delivered",
			logx.String("request_id", req.RequestID),
			logx.String("recipient", req.RecipientEmail),
			logx.Int("attempts", res.Attempts),
			logx.Duration("took", res.Took))
	case StatusFailed:
		e.log.Error("notification failed",
			logx.String("request_id", req.RequestID),
			logx.String("recipient", req.RecipientEmail),
			logx.String("reason", res.Reason),
			logx.Int("attempts", res.Attempts),
			logx.Err(res.Err))
	}
	return res
}

func (e *Engine) publish(topic string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Topic: topic, Time: e.now(), Payload: payload})
}

func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			return cfg.RetryMaxDelay
		}
	}
	if d > cfg.RetryMaxDelay {
		return cfg.RetryMaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
