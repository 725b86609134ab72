package shortener

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"chatpilot/internal/domain"
	"chatpilot/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// countingStore records mutations so tests can assert none happened.
type countingStore struct {
	mu      sync.Mutex
	links   map[string]*domain.TrackedLink
	upserts int
}

func newCountingStore() *countingStore {
	return &countingStore{links: map[string]*domain.TrackedLink{}}
}

func (c *countingStore) Upsert(ctx context.Context, id, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
	if l, ok := c.links[id]; ok {
		l.TargetURL = target
		return nil
	}
	c.links[id] = &domain.TrackedLink{ID: id, TargetURL: target}
	return nil
}

func (c *countingStore) Resolve(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[id]
	if !ok {
		return "", domain.ErrLinkNotFound
	}
	l.VisitCount++
	return l.TargetURL, nil
}

func (c *countingStore) Get(ctx context.Context, id string) (*domain.TrackedLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[id]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (c *countingStore) List(ctx context.Context, limit int) ([]domain.TrackedLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.TrackedLink
	for _, l := range c.links {
		out = append(out, *l)
	}
	return out, nil
}

func TestShortenURL_Idempotent(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "links.db"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	svc := NewService(st, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if r := svc.ShortenURL(ctx, "https://example.com/offer", "offer1"); !r.IsOK() {
			t.Fatalf("call %d failed: %v", i, r.Err)
		}
	}
	r := svc.Get(ctx, "offer1")
	if !r.IsOK() {
		t.Fatal(r.Err)
	}
	if r.Value.TargetURL != "https://example.com/offer" || r.Value.VisitCount != 0 {
		t.Fatalf("unexpected link %+v", r.Value)
	}
}

func TestShortenURL_InvalidArgumentsDoNotTouchStore(t *testing.T) {
	tests := []struct {
		name, url, key string
	}{
		{"blank key", "https://example.com", ""},
		{"whitespace key", "https://example.com", "  \t"},
		{"blank url", "", "k1"},
		{"whitespace url", "   ", "k1"},
		{"key with space", "https://example.com", "a b"},
		{"url too short", "a.io", "k1"},
		{"url too long", "https://example.com/" + strings.Repeat("x", 150), "k1"},
		{"relative url", "/just/a/path", "k1"},
		{"non-http scheme", "ftp://example.com/file", "k1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newCountingStore()
			svc := NewService(st, testLogger())
			r := svc.ShortenURL(context.Background(), tt.url, tt.key)
			if r.Kind() != domain.KindInvalidArgument {
				t.Fatalf("expected invalid_argument, got %v", r.Err)
			}
			if st.upserts != 0 {
				t.Fatal("store mutated on invalid input")
			}
		})
	}
}

func TestShortenURL_TrimsInput(t *testing.T) {
	st := newCountingStore()
	svc := NewService(st, testLogger())

	if r := svc.ShortenURL(context.Background(), "  https://example.com/a ", " k1 "); !r.IsOK() {
		t.Fatal(r.Err)
	}
	if _, ok := st.links["k1"]; !ok {
		t.Fatalf("key not trimmed: %v", st.links)
	}
}

func TestResolve(t *testing.T) {
	st := newCountingStore()
	svc := NewService(st, testLogger())
	ctx := context.Background()

	if r := svc.Resolve(ctx, "missing"); r.Kind() != domain.KindNotFound {
		t.Fatalf("expected not_found, got %v", r.Err)
	}

	svc.ShortenURL(ctx, "https://example.com/a", "k1")
	r := svc.Resolve(ctx, "k1")
	if !r.IsOK() || r.Value != "https://example.com/a" {
		t.Fatalf("unexpected resolve result %+v", r)
	}
	if st.links["k1"].VisitCount != 1 {
		t.Fatalf("expected one visit, got %d", st.links["k1"].VisitCount)
	}
}

func TestList(t *testing.T) {
	st := newCountingStore()
	svc := NewService(st, testLogger())
	ctx := context.Background()
	svc.ShortenURL(ctx, "https://example.com/a", "k1")
	svc.ShortenURL(ctx, "https://example.com/b", "k2")

	r := svc.List(ctx, 10)
	if !r.IsOK() || len(r.Value) != 2 {
		t.Fatalf("expected 2 links, got %+v", r)
	}
}
