package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatpilot/internal/browser"
	"chatpilot/internal/domain"
	"chatpilot/internal/metrics"

	"github.com/google/uuid"
)

const defaultDeadline = 2 * time.Minute

// Service sends messages through one browser session. The session tolerates
// a single interaction sequence at a time, so SendMessage calls on the same
// Service are serialized; separate sessions get separate Services.
type Service struct {
	locator  *Locator
	detector *Detector
	typer    *Typer
	opener   *Opener
	sender   *AttachmentSender

	selectors browser.SelectorSet
	deadline  time.Duration
	limiter   *RateLimiter
	history   domain.DeliveryLog
	logger    *slog.Logger

	// session is a one-slot semaphore; unlike a mutex, waiting on it
	// honors ctx.
	session chan struct{}
}

type ServiceConfig struct {
	Driver    domain.Driver
	Picker    domain.FilePicker
	Selectors browser.SelectorSet

	MarkerPoll       domain.PollSpec
	ChallengeTimeout time.Duration
	ChallengeRetries int
	Notifier         ChallengeNotifier

	// Deadline bounds one whole SendMessage call after the session is
	// acquired.
	Deadline time.Duration
	Limiter  *RateLimiter        // optional
	History  domain.DeliveryLog  // optional
	Logger   *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	locator := NewLocator(cfg.Driver, cfg.Logger)
	detector := NewDetector(DetectorConfig{
		Driver:           cfg.Driver,
		Selectors:        cfg.Selectors,
		MarkerPoll:       cfg.MarkerPoll,
		ChallengeTimeout: cfg.ChallengeTimeout,
		ChallengeRetries: cfg.ChallengeRetries,
		Notifier:         cfg.Notifier,
		Logger:           cfg.Logger,
	})
	typer := NewTyper(locator, cfg.Driver, cfg.Selectors.SearchBox, cfg.Logger)

	return &Service{
		locator:   locator,
		detector:  detector,
		typer:     typer,
		opener:    NewOpener(detector, locator, typer, cfg.Selectors, cfg.Logger),
		sender:    NewAttachmentSender(detector, locator, typer, cfg.Picker, cfg.Selectors, cfg.Logger),
		selectors: cfg.Selectors,
		deadline:  cfg.Deadline,
		limiter:   cfg.Limiter,
		history:   cfg.History,
		logger:    cfg.Logger,
		session:   make(chan struct{}, 1),
	}
}

// SendMessage opens target's chat and delivers payload.
//
// Failures are classified so the caller can pick a retry policy: anything
// that happened before the send control was clicked carries HintRetry,
// everything after it HintVerifyBeforeRetry, and a send whose outgoing
// bubble was never observed is KindSendUnconfirmed.
func (s *Service) SendMessage(ctx context.Context, target domain.ChatTarget, payload domain.MessagePayload, spec domain.PollSpec) domain.Result[domain.Unit] {
	if f := validateSend(target, payload, spec); f != nil {
		return domain.Fail[domain.Unit](f)
	}

	select {
	case s.session <- struct{}{}:
	case <-ctx.Done():
		return domain.Fail[domain.Unit](ctxFailure(ctx, "waiting for browser session"))
	}
	defer func() { <-s.session }()

	metrics.ActiveDeliveries.Inc()
	defer metrics.ActiveDeliveries.Dec()

	rec := domain.DeliveryRecord{
		ID:          uuid.NewString(),
		Chat:        string(target),
		PayloadKind: payload.PayloadKind(),
		StartedAt:   time.Now(),
	}
	logger := s.logger.With("delivery", rec.ID, "chat", target, "kind", rec.PayloadKind)
	logger.Info("delivery started")

	dctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	prog := &progress{}
	r := s.run(dctx, target, payload, spec, prog)
	if !r.IsOK() {
		r = domain.Fail[domain.Unit](s.classify(ctx, dctx, r.Err, prog, target))
	}

	rec.Phase = prog.phase
	rec.FinishedAt = time.Now()
	s.finish(logger, rec, r)
	return r
}

func (s *Service) run(ctx context.Context, target domain.ChatTarget, payload domain.MessagePayload, spec domain.PollSpec, prog *progress) domain.Result[domain.Unit] {
	if s.limiter != nil {
		prog.enter(phaseThrottle)
		if err := s.limiter.Wait(ctx); err != nil {
			return domain.Fail[domain.Unit](ctxFailure(ctx, "waiting for send rate limit"))
		}
	}

	prog.enter(phaseOpenChat)
	if r := s.opener.OpenContactChat(ctx, target, spec); !r.IsOK() {
		return r
	}

	switch p := payload.(type) {
	case domain.TextPayload:
		return s.sendText(ctx, p, spec, prog)
	case domain.ImagePayload:
		return s.sender.send(ctx, p, spec, prog)
	default:
		return domain.Failf[domain.Unit](domain.KindInvalidArgument, "unsupported payload %T", payload)
	}
}

// sendText types the body into the open chat's compose box, clicks send and
// waits for a new outgoing bubble.
func (s *Service) sendText(ctx context.Context, p domain.TextPayload, spec domain.PollSpec, prog *progress) domain.Result[domain.Unit] {
	fail := func(f *domain.Failure, step string) domain.Result[domain.Unit] {
		return domain.Fail[domain.Unit](f.Wrap("sending text: %s", step))
	}

	prog.enter(phaseCompose)
	if r := s.typer.Type(ctx, s.selectors.ComposeBox, p.Body, spec); !r.IsOK() {
		return fail(r.Err, "compose")
	}
	baseline, err := s.locator.Count(ctx, s.selectors.OutgoingMessage)
	if err != nil {
		return fail(domain.NewFailure(domain.KindInteractionFailed, "%v", err), "count outgoing messages")
	}

	prog.enter(phaseSend)
	if r := s.locator.Click(ctx, s.selectors.SendButton, spec); !r.IsOK() {
		return fail(r.Err, "click send")
	}
	prog.markSent()

	prog.enter(phaseConfirm)
	if f := confirmOutgoing(ctx, s.locator, s.selectors.OutgoingMessage, baseline, spec); f != nil {
		return fail(f, "confirmation")
	}
	return domain.Ok(domain.Unit{}, "text sent")
}

// classify applies the delivery-level rules to a failure: the overall
// deadline turns an in-flight step into Timeout (naming the phase reached),
// and anything after the send click is not safe to blindly retry.
func (s *Service) classify(parent, dctx context.Context, f *domain.Failure, prog *progress, target domain.ChatTarget) *domain.Failure {
	out := f.Wrap("send to %q (phase %s)", target, prog.phase)

	deadlineHit := dctx.Err() == context.DeadlineExceeded && parent.Err() == nil
	if deadlineHit && out.Kind != domain.KindSendUnconfirmed && out.Kind != domain.KindCancelled {
		out = &domain.Failure{
			Kind:    domain.KindTimeout,
			Message: fmt.Sprintf("delivery deadline %s exceeded during phase %s: %s", s.deadline, prog.phase, out.Message),
		}
	}
	if parent.Err() == context.Canceled && out.Kind != domain.KindCancelled {
		out.Kind = domain.KindCancelled
		out.Hint = ""
	}

	switch {
	case prog.sent:
		out.Hint = domain.HintVerifyBeforeRetry
	case out.Hint == "":
		out.Hint = domain.DefaultHint(out.Kind)
	}
	return out
}

func (s *Service) finish(logger *slog.Logger, rec domain.DeliveryRecord, r domain.Result[domain.Unit]) {
	elapsed := rec.FinishedAt.Sub(rec.StartedAt)
	metrics.DeliveryLatency.Observe(elapsed.Seconds())

	if r.IsOK() {
		rec.Outcome = "success"
		rec.Message = r.Message
		metrics.DeliveryOutcome("success").Inc()
		logger.Info("delivery succeeded", "elapsed", elapsed)
	} else {
		rec.Outcome = "failure"
		rec.ErrorKind = r.Err.Kind
		rec.Message = r.Err.Message
		metrics.DeliveryOutcome(string(r.Err.Kind)).Inc()
		logger.Error("delivery failed", "phase", rec.Phase, "kind", r.Err.Kind, "hint", r.Err.Hint, "err", r.Err.Message, "elapsed", elapsed)
	}

	if s.history == nil {
		return
	}
	// Recording uses its own short budget: the delivery ctx may be spent.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.RecordDelivery(ctx, rec); err != nil {
		logger.Error("record delivery history", "err", err)
	}
}

func validateSend(target domain.ChatTarget, payload domain.MessagePayload, spec domain.PollSpec) *domain.Failure {
	if strings.TrimSpace(string(target)) == "" {
		return domain.NewFailure(domain.KindInvalidArgument, "chat target is blank")
	}
	if err := spec.Validate(); err != nil {
		return domain.NewFailure(domain.KindInvalidArgument, "%v", err)
	}
	switch p := payload.(type) {
	case domain.TextPayload:
		if strings.TrimSpace(p.Body) == "" {
			return domain.NewFailure(domain.KindInvalidArgument, "text body is blank")
		}
	case domain.ImagePayload:
		if strings.TrimSpace(p.StoredImagePath) == "" {
			return domain.NewFailure(domain.KindInvalidArgument, "image path is blank")
		}
		if f := checkImage(p.StoredImagePath); f != nil {
			return f
		}
	case nil:
		return domain.NewFailure(domain.KindInvalidArgument, "payload is nil")
	default:
		return domain.NewFailure(domain.KindInvalidArgument, "unsupported payload %T", payload)
	}
	return nil
}
