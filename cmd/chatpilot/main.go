package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"chatpilot/internal/browser"
	"chatpilot/internal/config"
	"chatpilot/internal/domain"
	"chatpilot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	logFile    *os.File
	configPath string // overridable via --config flag
)

// Exit codes reported to the shell.
const (
	exitOK              = 0
	exitFailure         = 1
	exitInvalidArgument = 2
	exitSendUnconfirmed = 3
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:          "chatpilot",
		Short:        "chatpilot: deliver chat messages through a browser session",
		Long:         "chatpilot drives a logged-in chat web client (WhatsApp Web by default) to send text and image messages, and keeps tracked short links.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.chatpilot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(sendBatchCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(shortenCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(linksCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	err := root.Execute()
	if logFile != nil {
		logFile.Close()
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var f *domain.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case domain.KindInvalidArgument:
			return exitInvalidArgument
		case domain.KindSendUnconfirmed:
			return exitSendUnconfirmed
		}
	}
	return exitFailure
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file and rebuilds the global logger from its
// general section.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := configureLogger(cfg.General); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogger(g config.GeneralConfig) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	out := os.Stderr
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		if logFile != nil {
			logFile.Close()
		}
		logFile = f
		out = f
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the browser profile directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			profile := config.ExpandPath(cfg.Browser.ProfileDir)
			if err := os.MkdirAll(profile, 0o700); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "profile", profile)
			fmt.Println("Next: run 'chatpilot login' and scan the QR code.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a visible browser to log in to the chat web client",
		Long:  "Opens a visible Chrome window on the configured profile and waits until the chat list appears (scan the QR code). The session is kept for headless sends.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sel, err := loadSelectors(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Browser.ProfileDir,
				Logger:     logger,
			})
			return bridge.Login(ctx, sel)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, profile and store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				cfg = config.Defaults()
				cfg.Browser.ProfileDir = config.ExpandPath(cfg.Browser.ProfileDir)
				cfg.Links.DBPath = config.ExpandPath(cfg.Links.DBPath)
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			_, err = os.Stat(cfg.Browser.ProfileDir)
			logger.Info("browser", "url", cfg.Browser.URL, "profile", cfg.Browser.ProfileDir,
				"profile_exists", err == nil, "headless", cfg.Browser.Headless, "picker", cfg.Browser.FilePicker)

			st, err := store.NewSQLiteStore(cfg.Links.DBPath, logger)
			if err != nil {
				logger.Info("store", "path", cfg.Links.DBPath, "ok", false, "err", err)
				return nil
			}
			defer st.Close()

			ctx := cmd.Context()
			links, _ := st.List(ctx, 0)
			recent, _ := st.RecentDeliveries(ctx, 1)
			attrs := []any{"path", cfg.Links.DBPath, "links", len(links)}
			if len(recent) > 0 {
				last := recent[0]
				attrs = append(attrs, "last_delivery", last.StartedAt.Format("2006-01-02 15:04:05"), "last_outcome", last.Outcome)
			}
			logger.Info("store", attrs...)
			logger.Info("notify", "telegram", cfg.Notify.Telegram.Enabled)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are validated and saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. delivery.timeoutMs)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. delivery.sendsPerMinute 6)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("rejected %s=%s: %w", args[0], args[1], err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
