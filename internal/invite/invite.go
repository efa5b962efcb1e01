// Package invite builds calendar invitations for confirmed meetings and
// serializes them into the iCalendar interchange form consuming clients parse.
package invite

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"meetmail/internal/timeparse"
)

const (
	productID = "-//meetmail//Meeting Notification//EN"
	// icsTimeLayout is the UTC form required for UID-bearing REQUEST events.
	icsTimeLayout = "20060102T150405Z"
)

type Attendee struct {
	Name  string
	Email string
}

// Invite is an immutable calendar invitation. It is created fresh per
// dispatch and serialized exactly once into the outbound message.
type Invite struct {
	UID       string
	CreatedAt time.Time
	Start     time.Time
	End       time.Time

	Summary     string
	Description string
	Location    string
	Organizer   Attendee
	Attendees   []Attendee // recipient first, host second
}

type Config struct {
	Organizer Attendee
	Host      Attendee
	Location  string
}

type Builder struct {
	cfg    Config
	now    func() time.Time
	newUID func() string
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, now: time.Now, newUID: func() string { return uuid.NewString() }}
}

// NewBuilderWithClock fixes the DTSTAMP clock and UID source; used by tests
// that assert the serialized document byte-for-byte.
func NewBuilderWithClock(cfg Config, now func() time.Time, newUID func() string) *Builder {
	return &Builder{cfg: cfg, now: now, newUID: newUID}
}

// Build assembles an invite for the recipient over the normalized time range.
//
// The UID is generated fresh on every call. Calendar clients key events by
// UID; reusing one would make a new invite look like an update or
// cancellation of an earlier event.
func (b *Builder) Build(recipientName, recipientEmail string, r timeparse.Range) Invite {
	return Invite{
		UID:       b.newUID(),
		CreatedAt: b.now().UTC(),
		Start:     r.Start,
		End:       r.End,
		Summary:   "Tech Discovery Call with " + recipientName,
		Description: "Tech discovery call with " + b.cfg.Host.Name +
			".\n\nJoin the meeting: " + b.cfg.Location,
		Location:  b.cfg.Location,
		Organizer: b.cfg.Organizer,
		Attendees: []Attendee{
			{Name: recipientName, Email: recipientEmail},
			b.cfg.Host,
		},
	}
}

// ICS renders the canonical iCalendar document. Field order, CRLF endings and
// the escaped-newline DESCRIPTION form are all load-bearing: calendar clients
// parse this structurally, so the output must be stable bit-for-bit.
func (inv Invite) ICS() string {
	var b strings.Builder

	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + productID)
	line("METHOD:REQUEST")
	line("BEGIN:VEVENT")
	line("UID:" + inv.UID)
	line("DTSTAMP:" + inv.CreatedAt.UTC().Format(icsTimeLayout))
	line("DTSTART:" + inv.Start.UTC().Format(icsTimeLayout))
	line("DTEND:" + inv.End.UTC().Format(icsTimeLayout))
	line("SUMMARY:" + escapeText(inv.Summary))
	line("DESCRIPTION:" + escapeText(inv.Description))
	line("LOCATION:" + escapeText(inv.Location))
	line("ORGANIZER;CN=" + escapeText(inv.Organizer.Name) + ":mailto:" + inv.Organizer.Email)
	for _, a := range inv.Attendees {
		line("ATTENDEE;ROLE=REQ-PARTICIPANT;CN=" + escapeText(a.Name) + ":mailto:" + a.Email)
	}
	line("STATUS:CONFIRMED")
	line("END:VEVENT")
	line("END:VCALENDAR")

	return b.String()
}

// escapeText applies RFC 5545 TEXT escaping: backslash, semicolon, comma and
// real newlines (which become the literal two-character sequence \n).
func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\r\n", `\n`,
		"\n", `\n`,
	)
	return r.Replace(s)
}
