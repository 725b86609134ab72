package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"chatpilot/internal/domain"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Driver implements domain.Driver on top of a chromedp tab. Elements are
// addressed by (selector, index) and resolved in page JavaScript on every
// call, so a handle whose node disappeared reports domain.ErrStaleElement
// instead of hanging in a CDP node wait.
type Driver struct {
	tab    context.Context
	logger *slog.Logger
}

// NewDriver wraps a chromedp tab context, as returned by Bridge.Open.
func NewDriver(tab context.Context, logger *slog.Logger) *Driver {
	return &Driver{tab: tab, logger: logger}
}

// run executes actions on the tab, aborting when either the tab or the
// caller's ctx ends.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func elementExpr(h domain.ElementHandle) string {
	return fmt.Sprintf("document.querySelectorAll(%s)[%d]", jsString(h.Selector), h.Index)
}

func (d *Driver) FindElements(ctx context.Context, selector string) ([]domain.ElementHandle, error) {
	var n int
	expr := fmt.Sprintf("document.querySelectorAll(%s).length", jsString(selector))
	if err := d.run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	handles := make([]domain.ElementHandle, n)
	for i := range handles {
		handles[i] = domain.ElementHandle{Selector: selector, Index: i}
	}
	return handles, nil
}

// withElement evaluates body with `el` bound to the handle's node. body
// must return a boolean; false is reported as a stale element.
func (d *Driver) withElement(ctx context.Context, h domain.ElementHandle, body string) error {
	expr := fmt.Sprintf(`(function() {
		var el = %s;
		if (!el || !el.isConnected) return false;
		%s
	})()`, elementExpr(h), body)

	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", h, domain.ErrStaleElement)
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, h domain.ElementHandle) error {
	return d.withElement(ctx, h, `
		el.scrollIntoView({block: 'center'});
		el.click();
		return true;`)
}

func (d *Driver) focus(ctx context.Context, h domain.ElementHandle) error {
	return d.withElement(ctx, h, `
		el.focus();
		if (el.isContentEditable) {
			var range = document.createRange();
			range.selectNodeContents(el);
			range.collapse(false);
			var s = window.getSelection();
			s.removeAllRanges();
			s.addRange(range);
		}
		return true;`)
}

// SendKeys focuses the element and types text. Newlines are sent as
// Shift+Enter so multi-line text does not submit the compose box early.
func (d *Driver) SendKeys(ctx context.Context, h domain.ElementHandle, text string) error {
	if err := d.focus(ctx, h); err != nil {
		return err
	}
	var actions []chromedp.Action
	for i, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if i > 0 {
			actions = append(actions, chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierShift)))
		}
		if line != "" {
			actions = append(actions, chromedp.KeyEvent(line))
		}
	}
	if err := d.run(ctx, actions...); err != nil {
		return fmt.Errorf("type into %s: %w", h, err)
	}
	return nil
}

func (d *Driver) Clear(ctx context.Context, h domain.ElementHandle) error {
	return d.withElement(ctx, h, `
		el.focus();
		if (el.isContentEditable) {
			document.execCommand('selectAll', false, null);
			document.execCommand('delete', false, null);
		} else {
			el.value = '';
			el.dispatchEvent(new Event('input', {bubbles: true}));
		}
		return true;`)
}

func (d *Driver) ReadText(ctx context.Context, h domain.ElementHandle) (string, error) {
	expr := fmt.Sprintf(`(function() {
		var el = %s;
		if (!el || !el.isConnected) return {ok: false, text: ''};
		if (!el.isContentEditable && typeof el.value === 'string') return {ok: true, text: el.value};
		return {ok: true, text: el.innerText || el.textContent || ''};
	})()`, elementExpr(h))

	var res struct {
		OK   bool   `json:"ok"`
		Text string `json:"text"`
	}
	if err := d.run(ctx, chromedp.Evaluate(expr, &res)); err != nil {
		return "", fmt.Errorf("read %s: %w", h, err)
	}
	if !res.OK {
		return "", fmt.Errorf("%s: %w", h, domain.ErrStaleElement)
	}
	return res.Text, nil
}

func (d *Driver) CurrentPageMarkers(ctx context.Context, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	list, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`%s.filter(function(s) {
		try { return document.querySelector(s) !== null; } catch (e) { return false; }
	})`, list)

	var matched []string
	if err := d.run(ctx, chromedp.Evaluate(expr, &matched)); err != nil {
		return nil, fmt.Errorf("check page markers: %w", err)
	}
	return matched, nil
}

var _ domain.Driver = (*Driver)(nil)
