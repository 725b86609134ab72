package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"chatpilot/internal/browser"
	"chatpilot/internal/config"
	"chatpilot/internal/delivery"
	"chatpilot/internal/domain"
	"chatpilot/internal/filepicker"
	"chatpilot/internal/metrics"
	"chatpilot/internal/notify"
	"chatpilot/internal/store"

	"github.com/spf13/cobra"
)

// session is one open browser plus the delivery service bound to it.
type session struct {
	service *delivery.Service
	store   *store.SQLiteStore
	close   func()
}

// openSession loads the selector profile, starts Chrome on the configured
// profile and wires the delivery service with its picker, notifier, limiter
// and history store.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	sel, err := loadSelectors(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Links.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	bridge := browser.NewBridge(browser.BridgeConfig{
		ProfileDir: cfg.Browser.ProfileDir,
		Headless:   cfg.Browser.Headless,
		Logger:     logger,
	})
	driver, closeBrowser, err := bridge.Open(ctx, sel)
	if err != nil {
		st.Close()
		return nil, err
	}

	var picker domain.FilePicker
	switch cfg.Browser.FilePicker {
	case "command":
		cp, err := filepicker.NewCommandPicker(filepicker.CommandConfig{
			Template: cfg.Browser.FilePickerCommand,
			Logger:   logger,
		})
		if err != nil {
			closeBrowser()
			st.Close()
			return nil, err
		}
		picker = cp
	default:
		picker = browser.NewFilePicker(driver, sel.FileInput)
	}

	var notifier delivery.ChallengeNotifier
	if tg := cfg.Notify.Telegram; tg.Enabled {
		notifier = notify.NewTelegram(notify.TelegramConfig{
			Token:  tg.Token,
			ChatID: int64(tg.ChatID),
			Logger: logger,
		})
	}

	svc := delivery.NewService(delivery.ServiceConfig{
		Driver:           driver,
		Picker:           picker,
		Selectors:        sel,
		MarkerPoll:       cfg.Delivery.MarkerPoll(),
		ChallengeTimeout: cfg.Delivery.ChallengeTimeout(),
		ChallengeRetries: cfg.Delivery.ChallengeRetries,
		Notifier:         notifier,
		Deadline:         cfg.Delivery.Deadline(),
		Limiter:          delivery.NewRateLimiter(cfg.Delivery.SendBurst, cfg.Delivery.SendsPerMinute),
		History:          st,
		Logger:           logger,
	})

	return &session{
		service: svc,
		store:   st,
		close: func() {
			closeBrowser()
			st.Close()
		},
	}, nil
}

// loadSelectors layers the selector profile file, browser.url and the
// browser.selectors overrides over the built-in defaults.
func loadSelectors(cfg *config.Config) (browser.SelectorSet, error) {
	sel, err := browser.LoadSelectors(cfg.Browser.SelectorsFile)
	if err != nil {
		return sel, err
	}
	if cfg.Browser.URL != "" {
		sel.URL = cfg.Browser.URL
	}
	if err := sel.ApplyOverrides(cfg.Browser.Selectors); err != nil {
		return sel, fmt.Errorf("browser.selectors: %w", err)
	}
	return sel, sel.Validate()
}

// stepPoll returns the configured per-step PollSpec with flag overrides.
func stepPoll(cfg *config.Config, timeout, interval time.Duration) domain.PollSpec {
	spec := cfg.Delivery.StepPoll()
	if timeout > 0 {
		spec.Timeout = timeout
	}
	if interval > 0 {
		spec.Interval = interval
	}
	return spec
}

func sendCmd() *cobra.Command {
	var (
		text, image, caption string
		timeout, interval    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <chat>",
		Short: "Send one text or image message to a chat",
		Long: `Opens the chat found by searching for <chat> and sends either --text or
--image (with an optional --caption).

Exit status: 0 sent, 2 invalid input, 3 sent but not confirmed (check the chat
before sending again), 1 any other failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload domain.MessagePayload
			switch {
			case text != "" && image != "":
				return domain.NewFailure(domain.KindInvalidArgument, "use either --text or --image")
			case image != "":
				payload = domain.ImagePayload{StoredImagePath: image, Caption: caption}
			case caption != "":
				return domain.NewFailure(domain.KindInvalidArgument, "--caption needs --image")
			default:
				payload = domain.TextPayload{Body: text}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			s, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			r := s.service.SendMessage(ctx, domain.ChatTarget(args[0]), payload, stepPoll(cfg, timeout, interval))
			if !r.IsOK() {
				fmt.Fprintf(os.Stderr, "hint: %s\n", r.Err.Hint)
				return r.Err
			}
			fmt.Println(r.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message body")
	cmd.Flags().StringVar(&image, "image", "", "path of an image to send")
	cmd.Flags().StringVar(&caption, "caption", "", "caption for --image")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-step timeout (default from delivery.timeoutMs)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from delivery.pollIntervalMs)")
	return cmd
}

func sendBatchCmd() *cobra.Command {
	var timeout, interval time.Duration
	cmd := &cobra.Command{
		Use:   "send-batch <jobs.yaml>",
		Short: "Send a list of messages through one browser session",
		Long: `Runs every job in the YAML file in order. Failed jobs are reported and
skipped; unconfirmed sends are never retried automatically. While the batch
runs, metrics are served on metrics.listen when metrics.enabled is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := loadBatch(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			if cfg.Metrics.Enabled {
				shutdown := serveMetrics(cfg.Metrics)
				defer shutdown()
			}

			s, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.close()

			logger.Info("batch started", "file", args[0], "jobs", len(jobs))
			sum := runBatch(ctx, s.service, jobs, stepPoll(cfg, timeout, interval), os.Stdout)
			logger.Info("batch finished", "sent", sum.Sent, "failed", sum.Failed, "unconfirmed", sum.Unconfirmed, "skipped", sum.Skipped)
			fmt.Println(sum)
			return sum.err()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-step timeout (default from delivery.timeoutMs)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from delivery.pollIntervalMs)")
	return cmd
}

// serveMetrics exposes the metrics registry until the returned function is
// called.
func serveMetrics(cfg config.MetricsConfig) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Endpoint, metrics.Collector.Handler())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Listen, "endpoint", cfg.Endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Links.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.RecentDeliveries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No deliveries yet.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tCHAT\tKIND\tPHASE\tOUTCOME\tDETAIL")
			for _, r := range recs {
				outcome := r.Outcome
				if r.ErrorKind != "" {
					outcome += " (" + string(r.ErrorKind) + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Chat, r.PayloadKind, r.Phase, outcome, r.Message)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}
