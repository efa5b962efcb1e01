package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"meetmail/internal/transport"
)

// Fixed boundaries keep rendered output deterministic for tests; uniqueness
// within one message is all MIME requires.
const (
	mixedBoundary = "meetmail-mixed"
	altBoundary   = "meetmail-alt"
)

// Render encodes a composed message into RFC 5322 wire form: a
// multipart/alternative body (text + HTML) and, when an invite is present,
// a multipart/mixed wrapper carrying the calendar attachment. now stamps the
// Date header; with a fixed now the output is byte-for-byte reproducible.
func Render(msg transport.Message, now time.Time) []byte {
	var b bytes.Buffer

	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	header("From", formatAddress(msg.From))
	header("To", formatAddress(msg.To))
	if len(msg.Cc) > 0 {
		ccs := make([]string, 0, len(msg.Cc))
		for _, a := range msg.Cc {
			ccs = append(ccs, formatAddress(a))
		}
		header("Cc", strings.Join(ccs, ", "))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	hasCalendar := msg.Calendar != ""
	if hasCalendar {
		header("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixedBoundary))
		b.WriteString("\r\n")
		b.WriteString("--" + mixedBoundary + "\r\n")
	} else {
		header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altBoundary))
		b.WriteString("\r\n")
	}

	if hasCalendar {
		b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary))
	}

	writeBodyPart(&b, "text/plain; charset=UTF-8", msg.Text)
	writeBodyPart(&b, "text/html; charset=UTF-8", msg.HTML)
	b.WriteString("--" + altBoundary + "--\r\n")

	if hasCalendar {
		b.WriteString("--" + mixedBoundary + "\r\n")
		b.WriteString("Content-Type: text/calendar; charset=UTF-8; method=REQUEST; name=\"invite.ics\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"invite.ics\"\r\n")
		b.WriteString("\r\n")
		writeBase64(&b, []byte(msg.Calendar))
		b.WriteString("--" + mixedBoundary + "--\r\n")
	}

	return b.Bytes()
}

func writeBodyPart(b *bytes.Buffer, contentType, body string) {
	b.WriteString("--" + altBoundary + "\r\n")
	b.WriteString("Content-Type: " + contentType + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
}

// writeBase64 wraps encoded content at the conventional 76 columns.
func writeBase64(b *bytes.Buffer, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteString("\r\n")
		enc = enc[76:]
	}
	if enc != "" {
		b.WriteString(enc)
		b.WriteString("\r\n")
	}
}

func formatAddress(a transport.Address) string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", a.Name), a.Email)
}
