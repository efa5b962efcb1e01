package smtp

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"meetmail/internal/transport"
)

var renderTime = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func testMessage() transport.Message {
	return transport.Message{
		From:    transport.Address{Name: "Lena", Email: "tech@example.com"},
		To:      transport.Address{Name: "John Doe", Email: "john.doe@example.com"},
		Cc:      []transport.Address{{Name: "Lena", Email: "tech@example.com"}},
		Subject: "Confirmation: Tech Discovery Call with John Doe",
		Text:    "Hi John Doe, your meeting is confirmed.",
		HTML:    "<p>Hi John Doe</p>",
	}
}

func TestRenderHeaders(t *testing.T) {
	t.Parallel()
	out := string(Render(testMessage(), renderTime))

	for _, want := range []string{
		"From: Lena <tech@example.com>\r\n",
		"To: John Doe <john.doe@example.com>\r\n",
		"Cc: Lena <tech@example.com>\r\n",
		"Subject: Confirmation: Tech Discovery Call with John Doe\r\n",
		"Date: Mon, 15 Jun 2026 10:00:00 +0000\r\n",
		"MIME-Version: 1.0\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered message missing %q\n%s", want, out)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()
	msg := testMessage()
	msg.Calendar = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"

	first := Render(msg, renderTime)
	second := Render(msg, renderTime)
	if !bytes.Equal(first, second) {
		t.Fatal("same message and clock must render identical bytes")
	}

	later := Render(msg, renderTime.Add(time.Hour))
	if bytes.Equal(first, later) {
		t.Fatal("Date header must follow the supplied clock")
	}
}

func TestRenderWithoutCalendar(t *testing.T) {
	t.Parallel()
	out := string(Render(testMessage(), renderTime))

	if !strings.Contains(out, "multipart/alternative") {
		t.Fatal("expected multipart/alternative body")
	}
	if strings.Contains(out, "multipart/mixed") {
		t.Fatal("no calendar part means no mixed wrapper")
	}
	if !strings.Contains(out, "Content-Type: text/plain; charset=UTF-8") {
		t.Fatal("missing text part")
	}
	if !strings.Contains(out, "Content-Type: text/html; charset=UTF-8") {
		t.Fatal("missing html part")
	}
}

func TestRenderWithCalendar(t *testing.T) {
	t.Parallel()
	msg := testMessage()
	msg.Calendar = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	out := string(Render(msg, renderTime))

	if !strings.Contains(out, "multipart/mixed") {
		t.Fatal("calendar attachment requires a mixed wrapper")
	}
	if !strings.Contains(out, `Content-Type: text/calendar; charset=UTF-8; method=REQUEST; name="invite.ics"`) {
		t.Fatal("missing calendar part header")
	}
	if !strings.Contains(out, "Content-Transfer-Encoding: base64") {
		t.Fatal("calendar part must be base64 encoded")
	}
	if !strings.Contains(out, `Content-Disposition: attachment; filename="invite.ics"`) {
		t.Fatal("calendar part must be an attachment")
	}
}

func TestFormatAddress(t *testing.T) {
	t.Parallel()
	if got := formatAddress(transport.Address{Email: "a@b.c"}); got != "a@b.c" {
		t.Fatalf("bare address = %q", got)
	}
	if got := formatAddress(transport.Address{Name: "A B", Email: "a@b.c"}); got != "A B <a@b.c>" {
		t.Fatalf("named address = %q", got)
	}
}
