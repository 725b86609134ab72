package delivery

import (
	"context"
	"errors"
	"time"

	"chatpilot/internal/domain"
)

// errPollTimeout means the poll's own timeout elapsed while the caller's
// context was still live.
var errPollTimeout = errors.New("poll timed out")

// poll evaluates cond immediately and then every spec.Interval until it
// reports done. The effective budget is the smaller of spec.Timeout and
// whatever remains on ctx.
//
// It returns nil, errPollTimeout, the parent's ctx.Err() (Canceled or
// DeadlineExceeded), or the first hard error returned by cond.
func poll(ctx context.Context, spec domain.PollSpec, cond func(context.Context) (bool, error)) error {
	pctx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	for {
		done, err := cond(pctx)
		if done && err == nil {
			return nil
		}
		if pctx.Err() != nil {
			return pollCause(ctx)
		}
		if err != nil {
			return err
		}

		select {
		case <-pctx.Done():
			return pollCause(ctx)
		case <-ticker.C:
		}
	}
}

func pollCause(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return errPollTimeout
}

// pollFailure maps a poll error onto the failure taxonomy. onTimeout is
// the kind reported when the step's own timeout elapsed.
func pollFailure(err error, onTimeout domain.ErrorKind, format string, args ...any) *domain.Failure {
	f := domain.NewFailure(kindOf(err, onTimeout), format, args...)
	if !errors.Is(err, errPollTimeout) {
		f.Message += ": " + err.Error()
	}
	return f
}

func kindOf(err error, onTimeout domain.ErrorKind) domain.ErrorKind {
	switch {
	case errors.Is(err, errPollTimeout):
		return onTimeout
	case errors.Is(err, context.Canceled):
		return domain.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.KindTimeout
	default:
		return domain.KindInteractionFailed
	}
}

// ctxFailure reports why ctx ended, or nil when it is still live.
func ctxFailure(ctx context.Context, format string, args ...any) *domain.Failure {
	switch ctx.Err() {
	case nil:
		return nil
	case context.Canceled:
		return domain.NewFailure(domain.KindCancelled, format, args...)
	default:
		return domain.NewFailure(domain.KindTimeout, format, args...)
	}
}
