package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Browser: BrowserConfig{
			ProfileDir: "~/.chatpilot/chrome-profile",
			Headless:   false,
			URL:        "https://web.whatsapp.com",
			FilePicker: "cdp",
		},
		Delivery: DeliveryConfig{
			TimeoutMs:          10000,
			PollIntervalMs:     250,
			DeadlineMs:         120000,
			MarkerPollMs:       3000,
			ChallengeTimeoutMs: 120000,
			ChallengeRetries:   1,
			SendsPerMinute:     10,
			SendBurst:          3,
		},
		Links: LinksConfig{
			DBPath: "~/.chatpilot/chatpilot.db",
		},
		Notify: NotifyConfig{
			Telegram: TelegramConfig{Enabled: false},
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Listen:   "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
