package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatpilot/internal/domain"
)

// Locator finds DOM elements by polling the driver.
type Locator struct {
	driver domain.Driver
	logger *slog.Logger
}

func NewLocator(driver domain.Driver, logger *slog.Logger) *Locator {
	return &Locator{driver: driver, logger: logger}
}

// FindElement waits until selector matches at least one node and returns a
// handle to the first match. Stale nodes and transient driver errors are
// re-queried on the next tick; only the poll running out is a failure.
func (l *Locator) FindElement(ctx context.Context, selector string, spec domain.PollSpec) domain.Result[domain.ElementHandle] {
	var (
		found   domain.ElementHandle
		lastErr error
	)
	err := poll(ctx, spec, func(ctx context.Context) (bool, error) {
		handles, err := l.driver.FindElements(ctx, selector)
		if err != nil {
			l.noteTransient(selector, err)
			lastErr = err
			return false, nil
		}
		if len(handles) == 0 {
			return false, nil
		}
		found = handles[0]
		return true, nil
	})
	if err != nil {
		f := pollFailure(err, domain.KindNotFound, "element %q not found within %s", selector, spec.Timeout)
		if lastErr != nil && errors.Is(err, errPollTimeout) {
			f.Message += fmt.Sprintf(" (last driver error: %v)", lastErr)
		}
		return domain.Fail[domain.ElementHandle](f)
	}
	return domain.Ok(found, "found "+selector)
}

// Click locates selector and clicks its first match. A click that lands on
// a node detached in between is retried with a fresh lookup.
func (l *Locator) Click(ctx context.Context, selector string, spec domain.PollSpec) domain.Result[domain.Unit] {
	err := poll(ctx, spec, func(ctx context.Context) (bool, error) {
		handles, err := l.driver.FindElements(ctx, selector)
		if err != nil {
			l.noteTransient(selector, err)
			return false, nil
		}
		if len(handles) == 0 {
			return false, nil
		}
		if err := l.driver.Click(ctx, handles[0]); err != nil {
			if errors.Is(err, domain.ErrStaleElement) {
				l.logger.Debug("click hit stale element, re-querying", "selector", selector)
				return false, nil
			}
			return false, fmt.Errorf("click %s: %w", handles[0], err)
		}
		return true, nil
	})
	if err != nil {
		return domain.Fail[domain.Unit](pollFailure(err, domain.KindNotFound, "element %q not clickable within %s", selector, spec.Timeout))
	}
	return domain.Ok(domain.Unit{}, "clicked "+selector)
}

// Count returns how many nodes currently match selector, without waiting.
func (l *Locator) Count(ctx context.Context, selector string) (int, error) {
	handles, err := l.driver.FindElements(ctx, selector)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	return len(handles), nil
}

func (l *Locator) noteTransient(selector string, err error) {
	if errors.Is(err, domain.ErrStaleElement) {
		l.logger.Debug("stale element while querying, retrying", "selector", selector)
		return
	}
	l.logger.Debug("driver query failed, retrying", "selector", selector, "err", err)
}
