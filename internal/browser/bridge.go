package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Bridge launches Chrome on a persistent profile directory, so a chat
// session authenticated once through Login survives later headless runs.
type Bridge struct {
	profileDir string
	headless   bool
	logger     *slog.Logger
}

type BridgeConfig struct {
	ProfileDir string // Chrome user data dir; holds the chat client's session
	Headless   bool
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".chatpilot", "chrome-profile")
	}
	return &Bridge{profileDir: cfg.ProfileDir, headless: cfg.Headless, logger: cfg.Logger}
}

func (b *Bridge) ProfileDir() string { return b.profileDir }

// launch starts a Chrome process on the profile and returns its first tab.
// The release function kills the browser.
func (b *Bridge) launch(ctx context.Context, headless bool) (context.Context, func(), error) {
	if err := os.MkdirAll(b.profileDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create profile dir %s: %w", b.profileDir, err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.UserAgent(userAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("headless", headless),
	)
	if headless {
		opts = append(opts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	return tab, func() {
		tabCancel()
		allocCancel()
	}, nil
}

// Open starts Chrome, navigates to the chat client and returns a Driver
// bound to that tab. The returned close function releases the browser.
func (b *Bridge) Open(ctx context.Context, sel SelectorSet) (*Driver, func(), error) {
	tab, release, err := b.launch(ctx, b.headless)
	if err != nil {
		return nil, nil, err
	}
	if err := chromedp.Run(tab, chromedp.Navigate(sel.URL), chromedp.WaitReady("body")); err != nil {
		release()
		return nil, nil, fmt.Errorf("open %s: %w", sel.URL, err)
	}

	b.logger.Info("browser session opened", "url", sel.URL, "profile", b.profileDir, "headless", b.headless)
	return NewDriver(tab, b.logger), release, nil
}

// Login opens a visible browser on the chat client and waits until the
// logged-in marker renders (after the QR code is scanned) or ctx ends.
// Cookies stay in the profile directory either way.
func (b *Bridge) Login(ctx context.Context, sel SelectorSet) error {
	tab, release, err := b.launch(ctx, false)
	if err != nil {
		return err
	}
	defer release()

	b.logger.Info("opening browser for login", "url", sel.URL, "profile", b.profileDir)
	if err := chromedp.Run(tab, chromedp.Navigate(sel.URL)); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	b.logger.Info("waiting for login; scan the QR code in the browser window (Ctrl+C to abort)")
	if err := chromedp.Run(tab, chromedp.WaitVisible(sel.LoggedIn, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("login not completed: %w", ctx.Err())
		}
		return fmt.Errorf("wait for logged-in page: %w", err)
	}

	b.logger.Info("logged in; session saved", "profile", b.profileDir)
	return nil
}
