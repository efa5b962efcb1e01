// Package timeparse normalizes free-form meeting-time text into an absolute
// UTC time range.
//
// Input like "Thursday, November 30th at 2:00 PM EST" is tokenized and
// canonicalized (weekday and filler words dropped, ordinal suffixes stripped,
// am/pm and month casing fixed, timezone token extracted), then matched
// against a table of layouts. Fully-specified machine formats that slip past
// the table are handed to dateparse as a last resort.
package timeparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseError is the typed rejection for input no parser pass could use.
// It carries the original text so callers can echo it back.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable meeting time %q", e.Input)
}

// Range is a normalized meeting slot. Both instants are in UTC and
// End - Start equals the configured meeting duration (End > Start always).
type Range struct {
	Start time.Time
	End   time.Time
}

type Config struct {
	// Home is assumed when the input carries no timezone of its own.
	// Defaults to America/Los_Angeles.
	Home *time.Location
	// MeetingDuration defaults to 15 minutes.
	MeetingDuration time.Duration
}

type Parser struct {
	home *time.Location
	dur  time.Duration
	now  func() time.Time
}

func New(cfg Config) *Parser {
	return NewWithClock(cfg, time.Now)
}

func NewWithClock(cfg Config, now func() time.Time) *Parser {
	home := cfg.Home
	if home == nil {
		var err error
		home, err = time.LoadLocation("America/Los_Angeles")
		if err != nil {
			home = time.UTC
		}
	}
	dur := cfg.MeetingDuration
	if dur <= 0 {
		dur = 15 * time.Minute
	}
	return &Parser{home: home, dur: dur, now: now}
}

// Common timezone abbreviations mapped to fixed UTC offsets (seconds).
// Abbreviations are ambiguous globally; these are the North American and
// universal readings, which is what this domain's inputs use.
var zoneOffsets = map[string]int{
	"UTC": 0,
	"GMT": 0,
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,
}

var (
	ordinalRe   = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)$`)
	clockAmPmRe = regexp.MustCompile(`^(\d{1,2}(?::\d{2})?)(am|pm)$`)
)

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"mon": true, "tue": true, "tues": true, "wed": true, "thu": true,
	"thur": true, "thurs": true, "fri": true, "sat": true, "sun": true,
}

// Lowercased month tokens mapped to the full name the layout table expects.
var months = map[string]string{
	"january": "January", "february": "February", "march": "March",
	"april": "April", "may": "May", "june": "June", "july": "July",
	"august": "August", "september": "September", "october": "October",
	"november": "November", "december": "December",
	"jan": "January", "feb": "February", "mar": "March", "apr": "April",
	"jun": "June", "jul": "July", "aug": "August", "sep": "September",
	"sept": "September", "oct": "October", "nov": "November", "dec": "December",
}

// Layouts tried against the canonical token string. Year-less layouts parse
// into year 0 and get a year assigned afterwards.
var layouts = []string{
	"January 2 2006 3:04 PM",
	"January 2 2006 3 PM",
	"January 2 2006 15:04",
	"2 January 2006 3:04 PM",
	"2 January 2006 15:04",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"2006-01-02 3:04 PM",
	"2006-01-02 15:04",
	"January 2 3:04 PM",
	"January 2 3 PM",
	"January 2 15:04",
	"2 January 3:04 PM",
	"2 January 3 PM",
	"2 January 15:04",
	"1/2 3:04 PM",
	"1/2 15:04",
}

// Parse normalizes raw meeting-time text into a UTC Range.
// A nil error guarantees End = Start + meeting duration.
func (p *Parser) Parse(raw string) (Range, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Range{}, &ParseError{Input: raw}
	}

	canonical, loc := p.canonicalize(trimmed)

	if canonical != "" {
		for _, layout := range layouts {
			t, err := time.ParseInLocation(layout, canonical, loc)
			if err != nil {
				continue
			}
			if t.Year() == 0 {
				t = p.withInferredYear(t, loc)
			}
			return p.rangeFrom(t), nil
		}
	}

	// Machine-style inputs (RFC3339, unix-ish, etc.) that tokenization
	// doesn't help with.
	if t, err := dateparse.ParseIn(trimmed, loc); err == nil {
		return p.rangeFrom(t), nil
	}

	return Range{}, &ParseError{Input: raw}
}

func (p *Parser) rangeFrom(start time.Time) Range {
	s := start.UTC()
	return Range{Start: s, End: s.Add(p.dur)}
}

// withInferredYear places a year-less date in the current year, rolling to the
// next one when the result is already more than a day in the past. People say
// "November 30th at 2 PM" about upcoming meetings, not bygone ones.
func (p *Parser) withInferredYear(t time.Time, loc *time.Location) time.Time {
	now := p.now()
	cand := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if cand.Before(now.Add(-24 * time.Hour)) {
		cand = time.Date(now.Year()+1, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	}
	return cand
}

// canonicalize rewrites the input into "<Month> <day> [<year>] <clock> [AM|PM]"
// token form and extracts an explicit timezone if one is present.
func (p *Parser) canonicalize(s string) (string, *time.Location) {
	loc := p.home

	cleaned := strings.NewReplacer(",", " ", ".", "").Replace(s)
	fields := strings.Fields(cleaned)

	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		lower := strings.ToLower(tok)
		upper := strings.ToUpper(tok)

		switch {
		case weekdays[lower], lower == "at", lower == "on", lower == "the":
			// filler
		case lower == "am" || lower == "pm":
			out = append(out, upper)
		case lower == "noon":
			out = append(out, "12:00", "PM")
		case lower == "midnight":
			out = append(out, "12:00", "AM")
		case months[lower] != "":
			out = append(out, months[lower])
		case zoneHasOffset(upper):
			loc = time.FixedZone(upper, zoneOffsets[upper])
		case strings.Contains(tok, "/") && !strings.ContainsAny(tok, "0123456789"):
			// IANA zone names like America/New_York.
			if z, err := time.LoadLocation(tok); err == nil {
				loc = z
			} else {
				out = append(out, tok)
			}
		default:
			if m := ordinalRe.FindStringSubmatch(lower); m != nil {
				out = append(out, m[1])
				continue
			}
			if m := clockAmPmRe.FindStringSubmatch(lower); m != nil {
				clock := m[1]
				if !strings.Contains(clock, ":") {
					clock += ":00"
				}
				out = append(out, clock, strings.ToUpper(m[2]))
				continue
			}
			out = append(out, tok)
		}
	}

	return strings.Join(out, " "), loc
}

func zoneHasOffset(abbrev string) bool {
	_, ok := zoneOffsets[abbrev]
	return ok
}
