package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"chatpilot/internal/domain"
)

// Typer enters text into inputs and verifies it by reading it back.
type Typer struct {
	locator   *Locator
	driver    domain.Driver
	searchBox string
	logger    *slog.Logger
}

func NewTyper(locator *Locator, driver domain.Driver, searchBox string, logger *slog.Logger) *Typer {
	return &Typer{locator: locator, driver: driver, searchBox: searchBox, logger: logger}
}

// TypeIntoSearchBox replaces the chat search input's content with text.
func (t *Typer) TypeIntoSearchBox(ctx context.Context, text string, spec domain.PollSpec) domain.Result[domain.Unit] {
	return t.Type(ctx, t.searchBox, text, spec)
}

// Type clears the element matching selector, types text and waits for the
// element to read back the same text. A mismatch or a stale element is
// retried once from scratch; locator failures are returned unchanged.
func (t *Typer) Type(ctx context.Context, selector, text string, spec domain.PollSpec) domain.Result[domain.Unit] {
	r := t.typeOnce(ctx, selector, text, spec)
	if r.Kind() != domain.KindInteractionFailed {
		return r
	}
	t.logger.Debug("typing not confirmed, retrying once", "selector", selector, "reason", r.Message)
	return t.typeOnce(ctx, selector, text, spec)
}

func (t *Typer) typeOnce(ctx context.Context, selector, text string, spec domain.PollSpec) domain.Result[domain.Unit] {
	found := t.locator.FindElement(ctx, selector, spec)
	if !found.IsOK() {
		return domain.Retag[domain.Unit](found)
	}
	h := found.Value

	if err := t.driver.Clear(ctx, h); err != nil {
		return domain.Fail[domain.Unit](t.actionFailure(ctx, err, "clear %s", h))
	}
	if err := t.driver.SendKeys(ctx, h, text); err != nil {
		return domain.Fail[domain.Unit](t.actionFailure(ctx, err, "type into %s", h))
	}

	want := normalizeText(text)
	var got string
	err := poll(ctx, spec, func(ctx context.Context) (bool, error) {
		v, err := t.driver.ReadText(ctx, h)
		if err != nil {
			if errors.Is(err, domain.ErrStaleElement) {
				return false, err
			}
			return false, nil
		}
		got = normalizeText(v)
		return got == want, nil
	})
	if err != nil {
		f := pollFailure(err, domain.KindInteractionFailed, "read-back of %s did not match", h)
		if errors.Is(err, errPollTimeout) {
			f.Message += ": got " + quoteShort(got) + ", want " + quoteShort(want)
		}
		return domain.Fail[domain.Unit](f)
	}
	return domain.Ok(domain.Unit{}, "typed into "+selector)
}

func (t *Typer) actionFailure(ctx context.Context, err error, format string, args ...any) *domain.Failure {
	if f := ctxFailure(ctx, format, args...); f != nil {
		return f
	}
	f := domain.NewFailure(domain.KindInteractionFailed, format, args...)
	f.Message += ": " + err.Error()
	return f
}

// normalizeText makes read-back comparison insensitive to surrounding
// whitespace, CRLF and the non-breaking spaces rich editors insert.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}

func quoteShort(s string) string {
	const max = 40
	if r := []rune(s); len(r) > max {
		s = string(r[:max]) + "..."
	}
	return `"` + s + `"`
}
