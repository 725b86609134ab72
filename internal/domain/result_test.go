package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFailure_WrapPreservesKindAndHint(t *testing.T) {
	f := NewFailure(KindSendUnconfirmed, "bubble not seen")
	w := f.Wrap("send to %q", "alice")

	if w.Kind != KindSendUnconfirmed || w.Hint != HintVerifyBeforeRetry {
		t.Fatalf("wrap changed classification: %+v", w)
	}
	if w.Message != `send to "alice": bubble not seen` {
		t.Fatalf("unexpected message %q", w.Message)
	}
	if f.Message != "bubble not seen" {
		t.Fatal("wrap must not mutate the original")
	}
}

func TestDefaultHint(t *testing.T) {
	tests := map[ErrorKind]RecoveryHint{
		KindNotFound:          HintRetry,
		KindInteractionFailed: HintRetry,
		KindTimeout:           HintRetry,
		KindSendUnconfirmed:   HintVerifyBeforeRetry,
		KindUnexpectedState:   HintManual,
		KindInvalidArgument:   HintFixInput,
		KindCancelled:         HintNone,
	}
	for kind, want := range tests {
		if got := DefaultHint(kind); got != want {
			t.Errorf("DefaultHint(%s) = %s, want %s", kind, got, want)
		}
	}
}

func TestResult_OkAndFail(t *testing.T) {
	ok := Ok(42, "answer")
	if !ok.IsOK() || ok.Kind() != "" {
		t.Fatal("Ok result should succeed")
	}
	v, err := ok.Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("Unwrap = %d, %v", v, err)
	}

	bad := Failf[int](KindNotFound, "no %s", "row")
	if bad.IsOK() || bad.Kind() != KindNotFound {
		t.Fatalf("unexpected failed result %+v", bad)
	}
	_, err = bad.Unwrap()
	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindNotFound {
		t.Fatalf("Unwrap error should be a *Failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "not_found") {
		t.Fatalf("error text should carry the kind: %q", err.Error())
	}
}

func TestRetag(t *testing.T) {
	r := Retag[string](Failf[int](KindTimeout, "slow"))
	if r.Kind() != KindTimeout || r.Err.Message != "slow" {
		t.Fatalf("retag lost failure: %+v", r)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Retag on success should panic")
		}
	}()
	Retag[string](Ok(1, ""))
}

func TestPollSpec_Validate(t *testing.T) {
	tests := []struct {
		spec PollSpec
		ok   bool
	}{
		{PollSpec{Timeout: time.Second, Interval: 100 * time.Millisecond}, true},
		{PollSpec{Timeout: time.Second, Interval: time.Second}, false},
		{PollSpec{Timeout: 0, Interval: time.Millisecond}, false},
		{PollSpec{Timeout: time.Second, Interval: 0}, false},
	}
	for _, tt := range tests {
		if err := tt.spec.Validate(); (err == nil) != tt.ok {
			t.Errorf("Validate(%+v) = %v, want ok=%v", tt.spec, err, tt.ok)
		}
	}
}

func TestPageState_String(t *testing.T) {
	if PageSecurityChallenge.String() != "security_challenge" || PageState(9).String() != "page_state(9)" {
		t.Fatal("unexpected page state names")
	}
}
