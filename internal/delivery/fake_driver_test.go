package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"chatpilot/internal/browser"
	"chatpilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testSelectors() browser.SelectorSet {
	return browser.SelectorSet{
		LoggedIn:        "#app",
		Challenge:       []string{"#qr"},
		DismissPopup:    "#dismiss",
		SearchBox:       "#search",
		ResultRow:       "#result",
		ComposeBox:      "#compose",
		SendButton:      "#send",
		AttachButton:    "#attach",
		PhotosVideos:    "#photos",
		FileInput:       "#file",
		CaptionBox:      "#caption",
		MediaSendButton: "#media-send",
		OutgoingMessage: ".out",
	}
}

// fakePage is a scripted Driver. Elements are just per-selector counts and
// text values; triggers mutate the page when the flow clicks or types.
type fakePage struct {
	mu     sync.Mutex
	counts map[string]int
	texts  map[string]string
	events []string

	onClick map[string]func(p *fakePage)
	onKeys  map[string]func(p *fakePage, text string)

	staleClicks map[string]int // next N clicks on selector report a stale node
	dropKeys    map[string]int // next N SendKeys on selector are lost
	findErrs    map[string]int // next N queries for selector fail
}

func newFakePage(present ...string) *fakePage {
	p := &fakePage{
		counts:      map[string]int{},
		texts:       map[string]string{},
		onClick:     map[string]func(*fakePage){},
		onKeys:      map[string]func(*fakePage, string){},
		staleClicks: map[string]int{},
		dropKeys:    map[string]int{},
		findErrs:    map[string]int{},
	}
	for _, sel := range present {
		p.counts[sel] = 1
	}
	return p
}

// newChatPage renders a logged-in client where searching for one of chats
// produces a result row, and selecting it opens a conversation.
func newChatPage(chats ...string) *fakePage {
	p := newFakePage("#app", "#search")
	p.onKeys["#search"] = func(p *fakePage, text string) {
		for _, c := range chats {
			if text == c {
				p.Set("#result", 1)
			}
		}
	}
	p.onClick["#result"] = func(p *fakePage) {
		p.Set("#compose", 1)
		p.Set("#send", 1)
		p.Set("#attach", 1)
	}
	p.onClick["#attach"] = func(p *fakePage) { p.Set("#photos", 1) }
	return p
}

// confirmSends makes every click on selector add one outgoing bubble.
func (p *fakePage) confirmSends(selector string) {
	p.onClick[selector] = func(p *fakePage) { p.Add(".out", 1) }
}

func (p *fakePage) Set(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[selector] = n
}

func (p *fakePage) Add(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[selector] += n
}

func (p *fakePage) Remove(selector string) { p.Set(selector, 0) }

func (p *fakePage) Record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePage) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// countEvents returns how many recorded events start with prefix.
func (p *fakePage) countEvents(prefix string) int {
	n := 0
	for _, e := range p.Events() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// firstEvent returns the index of the first event containing s, or -1.
func (p *fakePage) firstEvent(s string) int {
	for i, e := range p.Events() {
		if strings.Contains(e, s) {
			return i
		}
	}
	return -1
}

func (p *fakePage) FindElements(ctx context.Context, selector string) ([]domain.ElementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findErrs[selector] > 0 {
		p.findErrs[selector]--
		return nil, errors.New("devtools: target busy")
	}
	handles := make([]domain.ElementHandle, p.counts[selector])
	for i := range handles {
		handles[i] = domain.ElementHandle{Selector: selector, Index: i}
	}
	return handles, nil
}

func (p *fakePage) Click(ctx context.Context, h domain.ElementHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if h.Index >= p.counts[h.Selector] {
		p.mu.Unlock()
		return domain.ErrStaleElement
	}
	if p.staleClicks[h.Selector] > 0 {
		p.staleClicks[h.Selector]--
		p.mu.Unlock()
		return domain.ErrStaleElement
	}
	p.events = append(p.events, "click "+h.Selector)
	trigger := p.onClick[h.Selector]
	p.mu.Unlock()

	if trigger != nil {
		trigger(p)
	}
	return nil
}

func (p *fakePage) SendKeys(ctx context.Context, h domain.ElementHandle, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if h.Index >= p.counts[h.Selector] {
		p.mu.Unlock()
		return domain.ErrStaleElement
	}
	p.events = append(p.events, "keys "+h.Selector+" "+text)
	if p.dropKeys[h.Selector] > 0 {
		p.dropKeys[h.Selector]--
		p.mu.Unlock()
		return nil
	}
	p.texts[h.Selector] += text
	value := p.texts[h.Selector]
	trigger := p.onKeys[h.Selector]
	p.mu.Unlock()

	if trigger != nil {
		trigger(p, value)
	}
	return nil
}

func (p *fakePage) Clear(ctx context.Context, h domain.ElementHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.Index >= p.counts[h.Selector] {
		return domain.ErrStaleElement
	}
	p.events = append(p.events, "clear "+h.Selector)
	p.texts[h.Selector] = ""
	return nil
}

func (p *fakePage) ReadText(ctx context.Context, h domain.ElementHandle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.Index >= p.counts[h.Selector] {
		return "", domain.ErrStaleElement
	}
	return p.texts[h.Selector], nil
}

func (p *fakePage) CurrentPageMarkers(ctx context.Context, candidates []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []string
	for _, c := range candidates {
		if p.counts[c] > 0 {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

var _ domain.Driver = (*fakePage)(nil)

// fakePicker renders the media preview when a file is chosen.
type fakePicker struct {
	page   *fakePage
	err    error
	chosen []string
}

func (f *fakePicker) Choose(ctx context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.chosen = append(f.chosen, path)
	f.page.Record("choose " + path)
	f.page.Set("#caption", 1)
	f.page.Set("#media-send", 1)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	phases []string
	hook   func()
}

func (n *fakeNotifier) NotifyChallenge(ctx context.Context, phase string) error {
	n.mu.Lock()
	n.phases = append(n.phases, phase)
	n.mu.Unlock()
	if n.hook != nil {
		n.hook()
	}
	return nil
}

func (n *fakeNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.phases)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []domain.DeliveryRecord
}

func (h *fakeHistory) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.DeliveryRecord(nil), h.records...), nil
}
