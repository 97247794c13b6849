package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Slack: SlackConfig{
			BotToken: "${SLACK_BOT_TOKEN}",
			AppToken: "${SLACK_APP_TOKEN}",
		},
		Anthropic: AnthropicConfig{
			APIKey:           "${ANTHROPIC_API_KEY}",
			Model:            "claude-3-5-sonnet-20241022",
			MaxTokens:        8192,
			Temperature:      0.7,
			MaxRetries:       2,
			TimeoutSeconds:   300,
			SystemPromptFile: "${ANTHROPIC_SYSTEM_PROMPT}",
		},
		Bot: BotConfig{
			Concurrency:   4,
			RatePerMinute: 30,
			RateBurst:     5,
			BusBuffer:     100,
		},
		Attachments: AttachmentsConfig{
			CacheEnabled:     true,
			CacheDB:          "~/.threadbot/attachments.db",
			CacheMaxAgeHours: 24 * 7,
			MaxBytes:         20 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}
