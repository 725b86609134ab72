package domain

import (
	"context"
	"errors"
	"time"
)

// ErrLinkNotFound is returned by a LinkStore when no link has the given id.
var ErrLinkNotFound = errors.New("tracked link not found")

// TrackedLink maps a short id to a destination URL and counts redirects.
type TrackedLink struct {
	ID         string    `json:"id"`
	TargetURL  string    `json:"target_url"`
	VisitCount uint64    `json:"visit_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// LinkStore is the key-value contract for tracked links.
type LinkStore interface {
	// Upsert creates the link or replaces its target URL. VisitCount is
	// never modified, so repeating a call is a no-op.
	Upsert(ctx context.Context, id, targetURL string) error
	// Resolve returns the target URL and increments VisitCount by one.
	Resolve(ctx context.Context, id string) (string, error)
	Get(ctx context.Context, id string) (*TrackedLink, error)
	List(ctx context.Context, limit int) ([]TrackedLink, error)
}
