// Package template loads the HTML mail body and fills its placeholder
// tokens. Substitution is literal text replacement; the file is not a
// templating-language document.
package template

import (
	"fmt"
	"os"
	"strings"
)

// Placeholder tokens the template file may contain.
const (
	TokenUserName    = "{user_name}"
	TokenMeetingTime = "{meeting_time}"
	TokenMeetingLink = "{GOOGLE_MEET_LINK_HERE}"
)

type Template struct {
	content string
}

// Load reads and caches the template file. Called once at startup so a
// missing template fails the process before it accepts traffic.
func Load(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("email template %s: %w", path, err)
	}
	return &Template{content: string(b)}, nil
}

// FromString builds a template from literal content (tests, embedded defaults).
func FromString(content string) *Template {
	return &Template{content: content}
}

// Personalize substitutes all placeholder tokens verbatim.
func (t *Template) Personalize(userName, meetingTime, meetingLink string) string {
	r := strings.NewReplacer(
		TokenUserName, userName,
		TokenMeetingTime, meetingTime,
		TokenMeetingLink, meetingLink,
	)
	return r.Replace(t.content)
}
