package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent.html")); err == nil {
		t.Fatal("missing template must fail at load time")
	}
}

func TestLoadAndPersonalize(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "email_template.html")
	content := "<p>Hi {user_name}, see you {meeting_time}.</p><a href=\"{GOOGLE_MEET_LINK_HERE}\">join</a>"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	tpl, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := tpl.Personalize("John Doe", "Thursday at 2 PM EST", "https://meet.example/x")
	want := "<p>Hi John Doe, see you Thursday at 2 PM EST.</p><a href=\"https://meet.example/x\">join</a>"
	if got != want {
		t.Fatalf("Personalize = %q, want %q", got, want)
	}
}

func TestPersonalizeIsLiteral(t *testing.T) {
	t.Parallel()
	tpl := FromString("{user_name} {user_name} {{user_name}}")
	got := tpl.Personalize("A", "", "")
	// Every occurrence replaced, no templating semantics.
	if got != "A A {A}" {
		t.Fatalf("got %q", got)
	}
}

func TestPersonalizeLeavesUnknownTokens(t *testing.T) {
	t.Parallel()
	tpl := FromString("hello {other_token}")
	if got := tpl.Personalize("x", "y", "z"); !strings.Contains(got, "{other_token}") {
		t.Fatalf("unknown tokens must pass through, got %q", got)
	}
}
