package delivery

import (
	"context"
	"log/slog"

	"chatpilot/internal/browser"
	"chatpilot/internal/domain"
)

// Opener brings a conversation into focus through the chat search box.
type Opener struct {
	detector  *Detector
	locator   *Locator
	typer     *Typer
	selectors browser.SelectorSet
	logger    *slog.Logger
}

func NewOpener(detector *Detector, locator *Locator, typer *Typer, sel browser.SelectorSet, logger *slog.Logger) *Opener {
	return &Opener{detector: detector, locator: locator, typer: typer, selectors: sel, logger: logger}
}

// OpenContactChat searches for chat, selects the first result and waits for
// the compose box, which only renders once the conversation is open.
func (o *Opener) OpenContactChat(ctx context.Context, chat domain.ChatTarget, spec domain.PollSpec) domain.Result[domain.Unit] {
	fail := func(f *domain.Failure, step string) domain.Result[domain.Unit] {
		o.logger.Error("open chat failed", "chat", chat, "step", step, "kind", f.Kind, "err", f.Message)
		return domain.Fail[domain.Unit](f.Wrap("opening chat %q: %s", chat, step))
	}

	if r := o.detector.Ensure(ctx, "open-chat"); !r.IsOK() {
		return fail(r.Err, "page check")
	}

	if r := o.typer.TypeIntoSearchBox(ctx, string(chat), spec); !r.IsOK() {
		return fail(r.Err, "search")
	}

	if r := o.locator.FindElement(ctx, o.selectors.ResultRow, spec); !r.IsOK() {
		return fail(r.Err, "no search result")
	}
	if r := o.locator.Click(ctx, o.selectors.ResultRow, spec); !r.IsOK() {
		return fail(r.Err, "select result")
	}

	if r := o.detector.Ensure(ctx, "open-chat"); !r.IsOK() {
		return fail(r.Err, "page check after selection")
	}

	if r := o.locator.FindElement(ctx, o.selectors.ComposeBox, spec); !r.IsOK() {
		return fail(r.Err, "compose box")
	}

	o.logger.Info("chat opened", "chat", chat)
	return domain.Ok(domain.Unit{}, "opened chat "+string(chat))
}
