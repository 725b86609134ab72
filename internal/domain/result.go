package domain

import "fmt"

// ErrorKind classifies an expected failure of a public operation.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInteractionFailed ErrorKind = "interaction_failed"
	KindUnexpectedState   ErrorKind = "unexpected_state"
	KindTimeout           ErrorKind = "timeout"
	KindCancelled         ErrorKind = "cancelled"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindSendUnconfirmed   ErrorKind = "send_unconfirmed"
)

// RecoveryHint tells the caller what it may safely do after a failure.
type RecoveryHint string

const (
	HintRetry             RecoveryHint = "retry"
	HintVerifyBeforeRetry RecoveryHint = "verify-before-retry"
	HintManual            RecoveryHint = "manual"
	HintFixInput          RecoveryHint = "fix-input"
	HintNone              RecoveryHint = "none"
)

// DefaultHint returns the recovery hint that applies to kind when the
// caller has no better information.
func DefaultHint(kind ErrorKind) RecoveryHint {
	switch kind {
	case KindNotFound, KindInteractionFailed, KindTimeout:
		return HintRetry
	case KindSendUnconfirmed:
		return HintVerifyBeforeRetry
	case KindUnexpectedState:
		return HintManual
	case KindInvalidArgument:
		return HintFixInput
	default:
		return HintNone
	}
}

// Failure is the error half of a Result.
type Failure struct {
	Kind    ErrorKind    `json:"kind"`
	Message string       `json:"message"`
	Hint    RecoveryHint `json:"hint"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Wrap returns a copy of f with context prepended to the message.
// Kind and hint are preserved.
func (f *Failure) Wrap(format string, args ...any) *Failure {
	return &Failure{
		Kind:    f.Kind,
		Message: fmt.Sprintf(format, args...) + ": " + f.Message,
		Hint:    f.Hint,
	}
}

// NewFailure builds a Failure with the default hint for kind.
func NewFailure(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Hint: DefaultHint(kind)}
}

// Unit is the value carried by results of operations that produce nothing.
type Unit struct{}

// Result is either a success carrying Value, or a failure carrying Err.
// Exactly one of the two is meaningful: Err == nil means success.
type Result[T any] struct {
	Value   T
	Message string
	Err     *Failure
}

// Ok builds a successful result.
func Ok[T any](value T, message string) Result[T] {
	return Result[T]{Value: value, Message: message}
}

// Fail builds a failed result from an existing Failure.
func Fail[T any](f *Failure) Result[T] {
	return Result[T]{Message: f.Message, Err: f}
}

// Failf builds a failed result with the default hint for kind.
func Failf[T any](kind ErrorKind, format string, args ...any) Result[T] {
	return Fail[T](NewFailure(kind, format, args...))
}

// Retag converts a failed result into a failed result of another type.
// It panics when r is a success.
func Retag[U, T any](r Result[T]) Result[U] {
	if r.Err == nil {
		panic("domain: Retag called on a successful result")
	}
	return Fail[U](r.Err)
}

func (r Result[T]) IsOK() bool { return r.Err == nil }

// Kind returns the failure kind, or "" for a success.
func (r Result[T]) Kind() ErrorKind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}

// Unwrap converts the result into the conventional (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}
