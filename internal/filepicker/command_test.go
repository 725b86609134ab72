package filepicker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestNewCommandPicker_EmptyTemplate(t *testing.T) {
	if _, err := NewCommandPicker(CommandConfig{Template: "  ", Logger: testLogger()}); err == nil {
		t.Fatal("expected error for empty template")
	}
}

func TestChoose_SubstitutesPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "chosen.txt")
	p, err := NewCommandPicker(CommandConfig{
		Template: "printf '%s' {path} > " + out,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}

	path := "/tmp/my photo's; rm -rf x.png"
	if err := p.Choose(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != path {
		t.Fatalf("command saw %q, want %q", got, path)
	}
}

func TestChoose_PositionalArg(t *testing.T) {
	dir := t.TempDir()
	p, err := NewCommandPicker(CommandConfig{Template: `touch "$(basename "$1").seen"`, Dir: dir, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Choose(context.Background(), "/some/where/pic.jpg"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pic.jpg.seen")); err != nil {
		t.Fatalf("command did not run in Dir: %v", err)
	}
}

func TestChoose_CommandFails(t *testing.T) {
	p, err := NewCommandPicker(CommandConfig{Template: "echo no window found >&2; exit 3", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	err = p.Choose(context.Background(), "/x.png")
	if err == nil || !strings.Contains(err.Error(), "no window found") {
		t.Fatalf("expected failure with command output, got %v", err)
	}
}

func TestChoose_ContextDeadline(t *testing.T) {
	p, err := NewCommandPicker(CommandConfig{Template: "sleep 5", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.Choose(ctx, "/x.png")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("command not killed on deadline")
	}
}
