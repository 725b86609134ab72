package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ChatTarget identifies a conversation, e.g. a contact name or phone number
// as typed into the chat search box.
type ChatTarget string

// MessagePayload is either a TextPayload or an ImagePayload.
type MessagePayload interface {
	PayloadKind() string
}

type TextPayload struct {
	Body string `json:"body" yaml:"text"`
}

func (TextPayload) PayloadKind() string { return "text" }

type ImagePayload struct {
	StoredImagePath string `json:"storedImagePath" yaml:"image"`
	Caption         string `json:"caption,omitempty" yaml:"caption"`
}

func (ImagePayload) PayloadKind() string { return "image" }

// PollSpec governs every wait-for-condition step.
type PollSpec struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Validate reports whether 0 < Interval < Timeout.
func (p PollSpec) Validate() error {
	if p.Timeout <= 0 || p.Interval <= 0 {
		return fmt.Errorf("poll timeout and interval must be positive (timeout=%s, interval=%s)", p.Timeout, p.Interval)
	}
	if p.Interval >= p.Timeout {
		return fmt.Errorf("poll interval %s must be shorter than timeout %s", p.Interval, p.Timeout)
	}
	return nil
}

// PageState is the classification of the page currently shown by the browser.
// It is recomputed on every detection cycle and never persisted.
type PageState int

const (
	PageNormal PageState = iota
	PageSecurityChallenge
	PageUnexpected
)

func (s PageState) String() string {
	switch s {
	case PageNormal:
		return "normal"
	case PageSecurityChallenge:
		return "security_challenge"
	case PageUnexpected:
		return "unexpected_page"
	default:
		return fmt.Sprintf("page_state(%d)", int(s))
	}
}

// ErrStaleElement is returned by a Driver when a handle no longer refers to
// a node in the document. Callers re-query instead of failing.
var ErrStaleElement = errors.New("stale element")

// ElementHandle refers to the Index-th node matching Selector at query time.
type ElementHandle struct {
	Selector string
	Index    int
}

func (h ElementHandle) String() string {
	return fmt.Sprintf("%s[%d]", h.Selector, h.Index)
}

// Driver is the minimal browser capability set the delivery core depends on.
// A Driver is a single stateful session: callers serialize access to it.
type Driver interface {
	FindElements(ctx context.Context, selector string) ([]ElementHandle, error)
	Click(ctx context.Context, h ElementHandle) error
	SendKeys(ctx context.Context, h ElementHandle, text string) error
	// Clear empties an input or contenteditable element.
	Clear(ctx context.Context, h ElementHandle) error
	// ReadText returns the value (inputs) or visible text (other nodes) of h.
	ReadText(ctx context.Context, h ElementHandle) (string, error)
	// CurrentPageMarkers returns the subset of candidates matching at least
	// one node on the current page.
	CurrentPageMarkers(ctx context.Context, candidates []string) ([]string, error)
}

// FilePicker completes the native "choose file" step for a local path.
type FilePicker interface {
	Choose(ctx context.Context, path string) error
}

// DeliveryRecord is one row of delivery history.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	Chat        string    `json:"chat"`
	PayloadKind string    `json:"payload_kind"`
	Phase       string    `json:"phase"`
	Outcome     string    `json:"outcome"` // success | failure
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// DeliveryLog persists delivery history.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, rec DeliveryRecord) error
	RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error)
}
