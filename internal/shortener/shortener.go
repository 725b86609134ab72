// Package shortener maps short keys to destination URLs and counts visits.
package shortener

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"chatpilot/internal/domain"
	"chatpilot/internal/metrics"
)

const (
	minTargetLen = 5
	maxTargetLen = 150
	maxKeyLen    = 64
)

type Service struct {
	store  domain.LinkStore
	logger *slog.Logger
}

func NewService(store domain.LinkStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ShortenURL points key at longURL, creating the link if needed. Repeating
// the call with the same arguments changes nothing, and the visit count is
// never touched.
func (s *Service) ShortenURL(ctx context.Context, longURL, key string) domain.Result[domain.Unit] {
	if f := validateKey(key); f != nil {
		return domain.Fail[domain.Unit](f)
	}
	if f := validateTarget(longURL); f != nil {
		return domain.Fail[domain.Unit](f)
	}
	key, longURL = strings.TrimSpace(key), strings.TrimSpace(longURL)

	if err := s.store.Upsert(ctx, key, longURL); err != nil {
		s.logger.Error("link upsert failed", "key", key, "err", err)
		return domain.Fail[domain.Unit](storeFailure(ctx, err, "shorten %q", key))
	}
	metrics.LinksShortened.Inc()
	s.logger.Info("link shortened", "key", key, "target", longURL)
	return domain.Ok(domain.Unit{}, "shortened "+key)
}

// Resolve returns the destination for key and counts one visit.
func (s *Service) Resolve(ctx context.Context, key string) domain.Result[string] {
	if f := validateKey(key); f != nil {
		return domain.Fail[string](f)
	}
	key = strings.TrimSpace(key)

	target, err := s.store.Resolve(ctx, key)
	if err != nil {
		return domain.Fail[string](storeFailure(ctx, err, "resolve %q", key))
	}
	metrics.LinksResolved.Inc()
	s.logger.Debug("link resolved", "key", key)
	return domain.Ok(target, "resolved "+key)
}

// Get returns the link without counting a visit.
func (s *Service) Get(ctx context.Context, key string) domain.Result[*domain.TrackedLink] {
	if f := validateKey(key); f != nil {
		return domain.Fail[*domain.TrackedLink](f)
	}
	l, err := s.store.Get(ctx, strings.TrimSpace(key))
	if err != nil {
		return domain.Fail[*domain.TrackedLink](storeFailure(ctx, err, "get %q", key))
	}
	return domain.Ok(l, "")
}

func (s *Service) List(ctx context.Context, limit int) domain.Result[[]domain.TrackedLink] {
	links, err := s.store.List(ctx, limit)
	if err != nil {
		return domain.Fail[[]domain.TrackedLink](storeFailure(ctx, err, "list links"))
	}
	return domain.Ok(links, "")
}

func validateKey(key string) *domain.Failure {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.NewFailure(domain.KindInvalidArgument, "key is blank")
	}
	if utf8.RuneCountInString(key) > maxKeyLen {
		return domain.NewFailure(domain.KindInvalidArgument, "key longer than %d characters", maxKeyLen)
	}
	if strings.ContainsFunc(key, unicode.IsSpace) {
		return domain.NewFailure(domain.KindInvalidArgument, "key %q contains whitespace", key)
	}
	return nil
}

func validateTarget(raw string) *domain.Failure {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.NewFailure(domain.KindInvalidArgument, "url is blank")
	}
	if n := utf8.RuneCountInString(raw); n < minTargetLen || n > maxTargetLen {
		return domain.NewFailure(domain.KindInvalidArgument, "url must be %d-%d characters, got %d", minTargetLen, maxTargetLen, n)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return domain.NewFailure(domain.KindInvalidArgument, "url %q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewFailure(domain.KindInvalidArgument, "url %q must be an absolute http(s) URL", raw)
	}
	return nil
}

func storeFailure(ctx context.Context, err error, format string, args ...any) *domain.Failure {
	var f *domain.Failure
	switch {
	case errors.Is(err, domain.ErrLinkNotFound):
		f = domain.NewFailure(domain.KindNotFound, format, args...)
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		f = domain.NewFailure(domain.KindCancelled, format, args...)
	case errors.Is(err, context.DeadlineExceeded):
		f = domain.NewFailure(domain.KindTimeout, format, args...)
	default:
		f = domain.NewFailure(domain.KindInteractionFailed, format, args...)
	}
	f.Message += ": " + err.Error()
	return f
}
