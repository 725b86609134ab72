package delivery

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"chatpilot/internal/domain"
)

func newTestTyper(page *fakePage) *Typer {
	loc := NewLocator(page, testLogger())
	return NewTyper(loc, page, "#search", testLogger())
}

func TestType_ReplacesContent(t *testing.T) {
	page := newFakePage("#compose")
	page.texts["#compose"] = "draft"
	typer := newTestTyper(page)

	r := typer.Type(context.Background(), "#compose", "hello", domain.PollSpec{Timeout: time.Second, Interval: 20 * time.Millisecond})
	if !r.IsOK() {
		t.Fatalf("type failed: %v", r.Err)
	}
	if got := page.texts["#compose"]; got != "hello" {
		t.Fatalf("compose holds %q", got)
	}
}

func TestType_RetriesOnceOnMismatch(t *testing.T) {
	page := newFakePage("#compose")
	page.dropKeys["#compose"] = 1
	typer := newTestTyper(page)

	r := typer.Type(context.Background(), "#compose", "hello", domain.PollSpec{Timeout: 100 * time.Millisecond, Interval: 20 * time.Millisecond})
	if !r.IsOK() {
		t.Fatalf("expected retry to succeed, got %v", r.Err)
	}
	if n := page.countEvents("keys #compose"); n != 2 {
		t.Fatalf("expected 2 typing attempts, got %d", n)
	}
}

func TestType_FailsAfterSecondMismatch(t *testing.T) {
	page := newFakePage("#compose")
	page.dropKeys["#compose"] = 5
	typer := newTestTyper(page)

	r := typer.Type(context.Background(), "#compose", "hello", domain.PollSpec{Timeout: 100 * time.Millisecond, Interval: 20 * time.Millisecond})
	if r.Kind() != domain.KindInteractionFailed {
		t.Fatalf("expected interaction_failed, got %v", r.Err)
	}
	if !strings.Contains(r.Err.Message, `want "hello"`) {
		t.Fatalf("message should show the expected text: %q", r.Err.Message)
	}
	if n := page.countEvents("keys #compose"); n != 2 {
		t.Fatalf("expected exactly one retry, got %d attempts", n)
	}
}

func TestType_MissingElementNotRetried(t *testing.T) {
	page := newFakePage()
	typer := newTestTyper(page)

	start := time.Now()
	r := typer.Type(context.Background(), "#compose", "hello", domain.PollSpec{Timeout: 100 * time.Millisecond, Interval: 20 * time.Millisecond})
	if r.Kind() != domain.KindNotFound {
		t.Fatalf("expected not_found, got %v", r.Err)
	}
	if elapsed := time.Since(start); elapsed > 180*time.Millisecond {
		t.Fatalf("locator failure should not be retried, took %v", elapsed)
	}
}

func TestTypeIntoSearchBox(t *testing.T) {
	page := newFakePage("#search")
	typer := newTestTyper(page)

	r := typer.TypeIntoSearchBox(context.Background(), "alice", domain.PollSpec{Timeout: time.Second, Interval: 20 * time.Millisecond})
	if !r.IsOK() {
		t.Fatalf("type failed: %v", r.Err)
	}
	if page.firstEvent("keys #search alice") < 0 {
		t.Fatalf("search not typed: %v", page.Events())
	}
}

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"  hi  ":        "hi",
		"a\r\nb":        "a\nb",
		"a\u00a0b":      "a b",
		"\n line one\n": "line one",
	}
	for in, want := range tests {
		if got := normalizeText(in); got != want {
			t.Errorf("normalizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuoteShort_TruncatesByRune(t *testing.T) {
	got := quoteShort(strings.Repeat("é", 50))
	if !utf8.ValidString(got) {
		t.Fatalf("quoteShort produced invalid UTF-8: %q", got)
	}
	want := `"` + strings.Repeat("é", 40) + `..."`
	if got != want {
		t.Fatalf("quoteShort = %s, want %s", got, want)
	}
	if got := quoteShort("short"); got != `"short"` {
		t.Fatalf("quoteShort(short) = %s", got)
	}
}
