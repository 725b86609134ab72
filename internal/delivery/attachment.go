package delivery

import (
	"context"
	"log/slog"

	"chatpilot/internal/browser"
	"chatpilot/internal/domain"
)

const (
	phaseThrottle = "throttle"
	phaseOpenChat = "open-chat"
	phaseCompose  = "compose"
	phaseAttach   = "attach"
	phaseSend     = "send"
	phaseConfirm  = "confirm"
)

// progress records how far one delivery got. Once sent is true the message
// may have gone out, so no failure after that point is safe to retry.
type progress struct {
	phase string
	sent  bool
}

func (p *progress) enter(phase string) {
	if p != nil {
		p.phase = phase
	}
}

func (p *progress) markSent() {
	if p != nil {
		p.sent = true
	}
}

// AttachmentSender sends an image with an optional caption into the chat
// that is currently open.
type AttachmentSender struct {
	detector  *Detector
	locator   *Locator
	typer     *Typer
	picker    domain.FilePicker
	selectors browser.SelectorSet
	logger    *slog.Logger
}

func NewAttachmentSender(detector *Detector, locator *Locator, typer *Typer, picker domain.FilePicker, sel browser.SelectorSet, logger *slog.Logger) *AttachmentSender {
	return &AttachmentSender{detector: detector, locator: locator, typer: typer, picker: picker, selectors: sel, logger: logger}
}

// SendImageMessage attaches payload.StoredImagePath, types the caption,
// clicks send and waits for a new outgoing message bubble. When that bubble
// never shows, the result is SendUnconfirmed: the image may have been sent.
func (a *AttachmentSender) SendImageMessage(ctx context.Context, payload domain.ImagePayload, spec domain.PollSpec) domain.Result[domain.Unit] {
	return a.send(ctx, payload, spec, nil)
}

func (a *AttachmentSender) send(ctx context.Context, payload domain.ImagePayload, spec domain.PollSpec, prog *progress) domain.Result[domain.Unit] {
	fail := func(f *domain.Failure, step string) domain.Result[domain.Unit] {
		a.logger.Error("image send failed", "step", step, "kind", f.Kind, "err", f.Message)
		return domain.Fail[domain.Unit](f.Wrap("sending image: %s", step))
	}

	prog.enter(phaseAttach)
	if r := a.detector.Ensure(ctx, phaseAttach); !r.IsOK() {
		return fail(r.Err, "page check")
	}
	if r := a.locator.Click(ctx, a.selectors.AttachButton, spec); !r.IsOK() {
		return fail(r.Err, "attach control")
	}
	if r := a.locator.Click(ctx, a.selectors.PhotosVideos, spec); !r.IsOK() {
		return fail(r.Err, "photos & videos option")
	}

	if f := a.chooseFile(ctx, payload.StoredImagePath, spec); f != nil {
		return fail(f, "file selection")
	}

	if payload.Caption != "" {
		if r := a.typer.Type(ctx, a.selectors.CaptionBox, payload.Caption, spec); !r.IsOK() {
			return fail(r.Err, "caption")
		}
	}

	if r := a.locator.FindElement(ctx, a.selectors.MediaSendButton, spec); !r.IsOK() {
		return fail(r.Err, "send control")
	}
	baseline, err := a.locator.Count(ctx, a.selectors.OutgoingMessage)
	if err != nil {
		return fail(domain.NewFailure(domain.KindInteractionFailed, "%v", err), "count outgoing messages")
	}

	prog.enter(phaseSend)
	if r := a.locator.Click(ctx, a.selectors.MediaSendButton, spec); !r.IsOK() {
		return fail(r.Err, "click send")
	}
	prog.markSent()

	prog.enter(phaseConfirm)
	if f := confirmOutgoing(ctx, a.locator, a.selectors.OutgoingMessage, baseline, spec); f != nil {
		return fail(f, "confirmation")
	}

	a.logger.Info("image sent", "path", payload.StoredImagePath, "caption_len", len(payload.Caption))
	return domain.Ok(domain.Unit{}, "image sent")
}

// chooseFile runs the opaque file-selection step under the step timeout.
func (a *AttachmentSender) chooseFile(ctx context.Context, path string, spec domain.PollSpec) *domain.Failure {
	if a.picker == nil {
		return domain.NewFailure(domain.KindInteractionFailed, "no file picker configured")
	}
	pctx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	if err := a.picker.Choose(pctx, path); err != nil {
		if f := ctxFailure(ctx, "choosing %s", path); f != nil {
			return f
		}
		if pctx.Err() != nil {
			return domain.NewFailure(domain.KindTimeout, "choosing %s timed out after %s", path, spec.Timeout)
		}
		return domain.NewFailure(domain.KindInteractionFailed, "choosing %s: %v", path, err)
	}
	return nil
}

// confirmOutgoing waits for the number of outgoing bubbles to exceed
// baseline. Running out of time for any reason other than cancellation is
// reported as SendUnconfirmed.
func confirmOutgoing(ctx context.Context, locator *Locator, selector string, baseline int, spec domain.PollSpec) *domain.Failure {
	err := poll(ctx, spec, func(ctx context.Context) (bool, error) {
		n, err := locator.Count(ctx, selector)
		if err != nil {
			return false, nil
		}
		return n > baseline, nil
	})
	if err == nil {
		return nil
	}
	if kindOf(err, domain.KindSendUnconfirmed) == domain.KindCancelled {
		f := domain.NewFailure(domain.KindCancelled, "cancelled while confirming send")
		f.Hint = domain.HintVerifyBeforeRetry
		return f
	}
	return domain.NewFailure(domain.KindSendUnconfirmed, "outgoing message not observed within %s", spec.Timeout)
}
