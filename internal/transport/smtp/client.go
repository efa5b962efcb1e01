// Package smtp adapts the transport.Submitter port onto an SMTP-compatible
// mail submission endpoint.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"meetmail/internal/transport"
	logx "meetmail/pkg/logx"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Timeout bounds the whole submission exchange. Defaults to 30s.
	Timeout time.Duration
	// StartTLS upgrades the connection before authenticating. Defaults to
	// true; only local test servers should disable it.
	StartTLS bool
}

type Client struct {
	cfg Config
	log logx.Logger
	now func() time.Time
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, log: log, now: time.Now}, nil
}

func (c *Client) addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Submit runs the full submission exchange for one message.
//
// Classification: dial/handshake/4xx failures come back transient (plain
// errors); authentication rejections and 5xx responses come back wrapped
// with transport.Permanent.
func (c *Client) Submit(ctx context.Context, msg transport.Message) error {
	deadline := c.now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	d := net.Dialer{Deadline: deadline}
	conn, err := d.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", c.addr(), err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	cl, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer cl.Close()

	if c.cfg.StartTLS {
		if ok, _ := cl.Extension("STARTTLS"); ok {
			if err := cl.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if c.cfg.Username != "" || c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := cl.Auth(auth); err != nil {
			// Retrying bad credentials cannot succeed.
			return transport.Permanent(fmt.Errorf("smtp auth: %w", err))
		}
	}

	if err := cl.Mail(msg.From.Email); err != nil {
		return classify("smtp mail", err)
	}
	if err := cl.Rcpt(msg.To.Email); err != nil {
		return classify("smtp rcpt", err)
	}
	for _, cc := range msg.Cc {
		if err := cl.Rcpt(cc.Email); err != nil {
			return classify("smtp rcpt cc", err)
		}
	}

	w, err := cl.Data()
	if err != nil {
		return classify("smtp data", err)
	}
	if _, err := w.Write(Render(msg, c.now())); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return classify("smtp data close", err)
	}

	if err := cl.Quit(); err != nil {
		// The message was accepted; a failed QUIT is not a delivery failure.
		c.log.Debug("smtp quit failed", logx.Err(err))
	}
	return nil
}

// Ping checks reachability without submitting anything.
func (c *Client) Ping(ctx context.Context) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	cl, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return err
	}
	return cl.Quit()
}

// classify maps SMTP reply codes onto the retry taxonomy: 5xx replies are
// definitive rejections, everything else (4xx, connection trouble) may clear
// up on retry.
func classify(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	var te *textproto.Error
	if errors.As(err, &te) && te.Code >= 500 {
		return transport.Permanent(wrapped)
	}
	return wrapped
}
