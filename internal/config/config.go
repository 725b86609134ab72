package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chatpilot/internal/domain"
)

// Config is the root configuration for chatpilot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Browser  BrowserConfig  `json:"browser"`
	Delivery DeliveryConfig `json:"delivery"`
	Links    LinksConfig    `json:"links"`
	Notify   NotifyConfig   `json:"notify"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

type BrowserConfig struct {
	ProfileDir string `json:"profileDir"`
	Headless   bool   `json:"headless"`
	URL        string `json:"url"`
	// SelectorsFile is a YAML selector profile layered over the built-in
	// WhatsApp Web selectors; Selectors overrides single keys on top of it.
	SelectorsFile string            `json:"selectorsFile,omitempty"`
	Selectors     map[string]string `json:"selectors,omitempty"`
	// FilePicker is "cdp" (set the file input directly) or "command"
	// (run FilePickerCommand against the native dialog).
	FilePicker        string `json:"filePicker"`
	FilePickerCommand string `json:"filePickerCommand,omitempty"`
}

type DeliveryConfig struct {
	TimeoutMs          int     `json:"timeoutMs"`
	PollIntervalMs     int     `json:"pollIntervalMs"`
	DeadlineMs         int     `json:"deadlineMs"`
	MarkerPollMs       int     `json:"markerPollMs"`
	ChallengeTimeoutMs int     `json:"challengeTimeoutMs"`
	ChallengeRetries   int     `json:"challengeRetries"`
	SendsPerMinute     float64 `json:"sendsPerMinute"`
	SendBurst          int     `json:"sendBurst"`
}

// StepPoll is the PollSpec applied to every wait inside one delivery.
func (d DeliveryConfig) StepPoll() domain.PollSpec {
	return domain.PollSpec{Timeout: ms(d.TimeoutMs), Interval: ms(d.PollIntervalMs)}
}

// MarkerPoll is the page classification window.
func (d DeliveryConfig) MarkerPoll() domain.PollSpec {
	return domain.PollSpec{Timeout: ms(d.MarkerPollMs), Interval: ms(d.PollIntervalMs)}
}

func (d DeliveryConfig) Deadline() time.Duration         { return ms(d.DeadlineMs) }
func (d DeliveryConfig) ChallengeTimeout() time.Duration { return ms(d.ChallengeTimeoutMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

type LinksConfig struct {
	DBPath string `json:"dbPath"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool      `json:"enabled"`
	Token   string    `json:"token"`
	ChatID  FlexInt64 `json:"chatId"`
}

// FlexInt64 is an int64 that also unmarshals from a JSON string, so values
// like "${TELEGRAM_CHAT_ID}" can be substituted from the environment.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexInt64(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("chat id must be a number or numeric string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("chat id %q is not numeric", s)
	}
	*f = FlexInt64(n)
	return nil
}

// MetricsConfig configures the Prometheus metrics listener used during
// batch runs.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Listen   string `json:"listen"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.chatpilot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatpilot"
	}
	return filepath.Join(home, ".chatpilot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.Browser.SelectorsFile = ExpandPath(cfg.Browser.SelectorsFile)
	cfg.Links.DBPath = ExpandPath(cfg.Links.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file may hold a bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Browser.FilePicker {
	case "cdp":
	case "command":
		if strings.TrimSpace(cfg.Browser.FilePickerCommand) == "" {
			errs = append(errs, "browser.filePickerCommand is required when browser.filePicker is \"command\"")
		}
	default:
		errs = append(errs, "browser.filePicker must be one of: cdp, command")
	}
	if cfg.Browser.URL != "" && !strings.HasPrefix(cfg.Browser.URL, "http://") && !strings.HasPrefix(cfg.Browser.URL, "https://") {
		errs = append(errs, "browser.url must be an http(s) URL")
	}

	d := cfg.Delivery
	if d.TimeoutMs <= 0 || d.PollIntervalMs <= 0 {
		errs = append(errs, "delivery.timeoutMs and delivery.pollIntervalMs must be > 0")
	} else if d.PollIntervalMs >= d.TimeoutMs {
		errs = append(errs, "delivery.pollIntervalMs must be less than delivery.timeoutMs")
	}
	if d.DeadlineMs < d.TimeoutMs {
		errs = append(errs, "delivery.deadlineMs must be >= delivery.timeoutMs")
	}
	if d.MarkerPollMs <= d.PollIntervalMs {
		errs = append(errs, "delivery.markerPollMs must be greater than delivery.pollIntervalMs")
	}
	if d.ChallengeTimeoutMs <= 0 {
		errs = append(errs, "delivery.challengeTimeoutMs must be > 0")
	}
	if d.ChallengeRetries < 0 || d.ChallengeRetries > 3 {
		errs = append(errs, "delivery.challengeRetries must be between 0 and 3")
	}
	if d.SendsPerMinute <= 0 {
		errs = append(errs, "delivery.sendsPerMinute must be > 0")
	}
	if d.SendBurst < 1 {
		errs = append(errs, "delivery.sendBurst must be >= 1")
	}

	if strings.TrimSpace(cfg.Links.DBPath) == "" {
		errs = append(errs, "links.dbPath is required")
	}

	if tg := cfg.Notify.Telegram; tg.Enabled {
		if tg.Token == "" {
			errs = append(errs, "notify.telegram.token is required when telegram is enabled")
		}
		if tg.ChatID == 0 {
			errs = append(errs, "notify.telegram.chatId is required when telegram is enabled")
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			errs = append(errs, "metrics.listen is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
