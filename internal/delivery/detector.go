package delivery

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"chatpilot/internal/browser"
	"chatpilot/internal/domain"
	"chatpilot/internal/metrics"
)

// ChallengeNotifier is told when a security challenge blocks the session,
// so an operator can resolve it by hand.
type ChallengeNotifier interface {
	NotifyChallenge(ctx context.Context, phase string) error
}

// Detector classifies the current page and drives recovery from
// interstitials. Every navigation-capable step calls Ensure before and
// after it runs; nothing below the detector reasons about challenge pages.
type Detector struct {
	driver           domain.Driver
	selectors        browser.SelectorSet
	markerPoll       domain.PollSpec
	challengeTimeout time.Duration
	challengeRetries int
	notifier         ChallengeNotifier
	logger           *slog.Logger
}

type DetectorConfig struct {
	Driver    domain.Driver
	Selectors browser.SelectorSet
	// MarkerPoll is the classification window; a page with no known marker
	// after it elapses is unexpected.
	MarkerPoll       domain.PollSpec
	ChallengeTimeout time.Duration
	// ChallengeRetries bounds how many times a challenge is handled within
	// one Ensure call before giving up.
	ChallengeRetries int
	Notifier         ChallengeNotifier
	Logger           *slog.Logger
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.MarkerPoll.Timeout <= 0 {
		cfg.MarkerPoll = domain.PollSpec{Timeout: 3 * time.Second, Interval: 250 * time.Millisecond}
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 2 * time.Minute
	}
	if cfg.ChallengeRetries < 0 {
		cfg.ChallengeRetries = 0
	}
	return &Detector{
		driver:           cfg.Driver,
		selectors:        cfg.Selectors,
		markerPoll:       cfg.MarkerPoll,
		challengeTimeout: cfg.ChallengeTimeout,
		challengeRetries: cfg.ChallengeRetries,
		notifier:         cfg.Notifier,
		logger:           cfg.Logger,
	}
}

func (d *Detector) candidates() []string {
	return append([]string{d.selectors.LoggedIn}, d.selectors.Challenge...)
}

// stateOf classifies one marker observation. Challenge markers win over the
// logged-in marker because interstitials are often overlaid on the app.
// ok is false when no known marker matched.
func (d *Detector) stateOf(matched []string) (state domain.PageState, ok bool) {
	for _, m := range d.selectors.Challenge {
		if slices.Contains(matched, m) {
			return domain.PageSecurityChallenge, true
		}
	}
	if slices.Contains(matched, d.selectors.LoggedIn) {
		return domain.PageNormal, true
	}
	return domain.PageUnexpected, false
}

// Classify polls the page markers for up to the marker window. The error is
// non-nil only when ctx ended.
func (d *Detector) Classify(ctx context.Context) (domain.PageState, error) {
	state := domain.PageUnexpected
	err := poll(ctx, d.markerPoll, func(ctx context.Context) (bool, error) {
		matched, err := d.driver.CurrentPageMarkers(ctx, d.candidates())
		if err != nil {
			d.logger.Debug("page marker check failed, retrying", "err", err)
			return false, nil
		}
		s, ok := d.stateOf(matched)
		if ok {
			state = s
		}
		return ok, nil
	})
	if err != nil && ctx.Err() != nil {
		return domain.PageUnexpected, ctx.Err()
	}
	return state, nil
}

// HandleChallenge notifies the operator and waits for the challenge to be
// resolved, i.e. for the logged-in marker to show with no challenge marker.
func (d *Detector) HandleChallenge(ctx context.Context, phase string) domain.Result[domain.Unit] {
	metrics.ChallengesTotal.Inc()
	d.logger.Warn("security challenge detected, waiting for resolution", "phase", phase, "timeout", d.challengeTimeout)

	if d.notifier != nil {
		if err := d.notifier.NotifyChallenge(ctx, phase); err != nil {
			d.logger.Error("challenge notification failed", "err", err)
		}
	}

	spec := domain.PollSpec{Timeout: d.challengeTimeout, Interval: d.markerPoll.Interval}
	err := poll(ctx, spec, func(ctx context.Context) (bool, error) {
		matched, err := d.driver.CurrentPageMarkers(ctx, d.candidates())
		if err != nil {
			return false, nil
		}
		s, ok := d.stateOf(matched)
		return ok && s == domain.PageNormal, nil
	})
	if err != nil {
		return domain.Fail[domain.Unit](pollFailure(err, domain.KindUnexpectedState,
			"security challenge not resolved within %s", d.challengeTimeout))
	}
	d.logger.Info("security challenge resolved", "phase", phase)
	return domain.Ok(domain.Unit{}, "challenge resolved")
}

// HandleUnexpected tries to dismiss whatever is covering the app and
// re-classifies once.
func (d *Detector) HandleUnexpected(ctx context.Context, phase string) domain.Result[domain.Unit] {
	d.logger.Warn("unexpected page, attempting recovery", "phase", phase)

	if d.selectors.DismissPopup != "" {
		handles, err := d.driver.FindElements(ctx, d.selectors.DismissPopup)
		if err == nil && len(handles) > 0 {
			if err := d.driver.Click(ctx, handles[0]); err != nil {
				d.logger.Debug("dismiss click failed", "err", err)
			}
		}
	}

	state, err := d.Classify(ctx)
	if err != nil {
		return domain.Fail[domain.Unit](ctxFailure(ctx, "recovering from unexpected page"))
	}
	if state != domain.PageNormal {
		return domain.Failf[domain.Unit](domain.KindUnexpectedState, "page still %s after recovery", state)
	}
	d.logger.Info("recovered from unexpected page", "phase", phase)
	return domain.Ok(domain.Unit{}, "recovered")
}

// Ensure is the recovery hook run between pipeline stages. It succeeds
// only once the page classifies as normal.
func (d *Detector) Ensure(ctx context.Context, phase string) domain.Result[domain.Unit] {
	state, err := d.Classify(ctx)
	if err != nil {
		return domain.Fail[domain.Unit](ctxFailure(ctx, "classifying page before %s", phase))
	}

	for attempt := 0; ; attempt++ {
		switch state {
		case domain.PageNormal:
			return domain.Ok(domain.Unit{}, "page normal")

		case domain.PageSecurityChallenge:
			if attempt >= d.challengeRetries {
				return domain.Failf[domain.Unit](domain.KindUnexpectedState,
					"security challenge still present before %s after %d recovery attempt(s)", phase, attempt)
			}
			if r := d.HandleChallenge(ctx, phase); !r.IsOK() {
				return r
			}

		case domain.PageUnexpected:
			return d.HandleUnexpected(ctx, phase)

		default:
			return domain.Failf[domain.Unit](domain.KindUnexpectedState, "unknown page state %s", state)
		}

		state, err = d.Classify(ctx)
		if err != nil {
			return domain.Fail[domain.Unit](ctxFailure(ctx, "re-classifying page before %s", phase))
		}
	}
}
