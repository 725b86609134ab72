package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls map[string]int
	sent  []string
	chat  []string
	delay time.Duration
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		f.mu.Lock()
		f.calls[method]++
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"pilot","username":"pilot_bot"}}`)
		case "sendMessage":
			time.Sleep(f.delay)
			f.mu.Lock()
			f.sent = append(f.sent, r.PostForm.Get("text"))
			f.chat = append(f.chat, r.PostForm.Get("chat_id"))
			f.mu.Unlock()
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	})
}

func (f *fakeBotAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBotAPI) messages() (texts, chats []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]string(nil), f.chat...)
}

func newTestTelegram(t *testing.T, api *fakeBotAPI) *Telegram {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewTelegram(TelegramConfig{
		Token:    "123:abc",
		ChatID:   42,
		Endpoint: srv.URL + "/bot%s/%s",
		Logger:   testLogger(),
	})
}

func TestTelegram_NotifyChallenge(t *testing.T) {
	api := &fakeBotAPI{calls: map[string]int{}}
	tg := newTestTelegram(t, api)

	if err := tg.NotifyChallenge(context.Background(), "open-chat"); err != nil {
		t.Fatal(err)
	}
	if err := tg.NotifyChallenge(context.Background(), "attach"); err != nil {
		t.Fatal(err)
	}

	if n := api.count("getMe"); n != 1 {
		t.Fatalf("bot should connect once, getMe called %d times", n)
	}
	texts, chats := api.messages()
	if len(texts) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(texts))
	}
	if !strings.Contains(texts[0], `"open-chat"`) || chats[0] != "42" {
		t.Fatalf("unexpected message %q to chat %s", texts[0], chats[0])
	}
}

func TestTelegram_SendHonorsContext(t *testing.T) {
	api := &fakeBotAPI{calls: map[string]int{}, delay: 500 * time.Millisecond}
	tg := newTestTelegram(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := tg.Send(ctx, "hello"); err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Fatal("Send did not return when ctx ended")
	}
}

func TestTelegram_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "bad", ChatID: 1, Endpoint: srv.URL + "/bot%s/%s", Logger: testLogger()})
	err := tg.Send(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
