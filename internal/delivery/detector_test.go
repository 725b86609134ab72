package delivery

import (
	"context"
	"testing"
	"time"

	"chatpilot/internal/domain"
)

func newTestDetector(page *fakePage, notifier ChallengeNotifier, retries int) *Detector {
	return NewDetector(DetectorConfig{
		Driver:           page,
		Selectors:        testSelectors(),
		MarkerPoll:       domain.PollSpec{Timeout: 150 * time.Millisecond, Interval: 20 * time.Millisecond},
		ChallengeTimeout: 300 * time.Millisecond,
		ChallengeRetries: retries,
		Notifier:         notifier,
		Logger:           testLogger(),
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		present []string
		want    domain.PageState
	}{
		{"logged in", []string{"#app"}, domain.PageNormal},
		{"challenge only", []string{"#qr"}, domain.PageSecurityChallenge},
		{"challenge overlays app", []string{"#app", "#qr"}, domain.PageSecurityChallenge},
		{"no marker", []string{"#something-else"}, domain.PageUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(newFakePage(tt.present...), nil, 1)
			got, err := d.Classify(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_CancelledContext(t *testing.T) {
	d := newTestDetector(newFakePage(), nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Classify(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestEnsure_NormalPage(t *testing.T) {
	notifier := &fakeNotifier{}
	d := newTestDetector(newFakePage("#app"), notifier, 1)
	if r := d.Ensure(context.Background(), "test"); !r.IsOK() {
		t.Fatalf("expected ok, got %v", r.Err)
	}
	if notifier.calls() != 0 {
		t.Fatal("no notification expected on a normal page")
	}
}

func TestEnsure_ChallengeResolved(t *testing.T) {
	page := newFakePage("#app", "#qr")
	notifier := &fakeNotifier{}
	notifier.hook = func() { time.AfterFunc(50*time.Millisecond, func() { page.Remove("#qr") }) }
	d := newTestDetector(page, notifier, 1)

	if r := d.Ensure(context.Background(), "compose"); !r.IsOK() {
		t.Fatalf("expected recovery, got %v", r.Err)
	}
	if notifier.calls() != 1 || notifier.phases[0] != "compose" {
		t.Fatalf("unexpected notifications: %v", notifier.phases)
	}
}

func TestEnsure_ChallengeRetriesExhausted(t *testing.T) {
	page := newFakePage("#app", "#qr")
	notifier := &fakeNotifier{}
	d := newTestDetector(page, notifier, 0)

	r := d.Ensure(context.Background(), "compose")
	if r.Kind() != domain.KindUnexpectedState {
		t.Fatalf("expected unexpected_state, got %v", r.Err)
	}
	if notifier.calls() != 0 {
		t.Fatal("no challenge handling expected with zero retries")
	}
}

func TestEnsure_UnexpectedPageDismissed(t *testing.T) {
	page := newFakePage("#dismiss")
	page.onClick["#dismiss"] = func(p *fakePage) {
		p.Remove("#dismiss")
		p.Set("#app", 1)
	}
	d := newTestDetector(page, nil, 1)

	if r := d.Ensure(context.Background(), "open-chat"); !r.IsOK() {
		t.Fatalf("expected recovery, got %v", r.Err)
	}
	if page.countEvents("click #dismiss") != 1 {
		t.Fatal("dismiss control should be clicked once")
	}
}

func TestEnsure_UnexpectedPageUnrecoverable(t *testing.T) {
	d := newTestDetector(newFakePage(), nil, 1)

	r := d.Ensure(context.Background(), "open-chat")
	if r.Kind() != domain.KindUnexpectedState {
		t.Fatalf("expected unexpected_state, got %v", r.Err)
	}
	if r.Err.Hint != domain.HintManual {
		t.Fatalf("expected manual hint, got %s", r.Err.Hint)
	}
}
