package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for threadbot.
type Config struct {
	General     GeneralConfig     `json:"general" yaml:"general"`
	Slack       SlackConfig       `json:"slack" yaml:"slack"`
	Anthropic   AnthropicConfig   `json:"anthropic" yaml:"anthropic"`
	Bot         BotConfig         `json:"bot" yaml:"bot"`
	Attachments AttachmentsConfig `json:"attachments" yaml:"attachments"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`                   // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

type SlackConfig struct {
	BotToken string `json:"botToken" yaml:"botToken"`
	AppToken string `json:"appToken" yaml:"appToken"` // required for Socket Mode
	Debug    bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
}

type AnthropicConfig struct {
	APIKey           string   `json:"apiKey" yaml:"apiKey"`
	BaseURL          string   `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Model            string   `json:"model" yaml:"model"`
	FallbackModels   []string `json:"fallbackModels,omitempty" yaml:"fallbackModels,omitempty"` // tried in order when the primary is unavailable
	MaxTokens        int      `json:"maxTokens" yaml:"maxTokens"`
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	MaxRetries       int      `json:"maxRetries" yaml:"maxRetries"`
	TimeoutSeconds   int      `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	SystemPrompt     string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	SystemPromptFile string   `json:"systemPromptFile,omitempty" yaml:"systemPromptFile,omitempty"` // read when systemPrompt is empty
}

type BotConfig struct {
	Concurrency   int     `json:"concurrency" yaml:"concurrency"` // max events handled at once
	RatePerMinute float64 `json:"ratePerMinute" yaml:"ratePerMinute"`
	RateBurst     int     `json:"rateBurst" yaml:"rateBurst"`
	BusBuffer     int     `json:"busBuffer" yaml:"busBuffer"`
}

type AttachmentsConfig struct {
	CacheEnabled     bool   `json:"cacheEnabled" yaml:"cacheEnabled"`
	CacheDB          string `json:"cacheDb" yaml:"cacheDb"`
	CacheMaxAgeHours int    `json:"cacheMaxAgeHours" yaml:"cacheMaxAgeHours"` // 0 = never prune
	MaxBytes         int64  `json:"maxBytes" yaml:"maxBytes"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.threadbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".threadbot"
	}
	return filepath.Join(home, ".threadbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file, chosen by extension, on top of
// Defaults and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.expandEnv()
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Attachments.CacheDB = ExpandPath(cfg.Attachments.CacheDB)
	cfg.Anthropic.SystemPromptFile = ExpandPath(cfg.Anthropic.SystemPromptFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// FromEnv returns Defaults with the environment applied, for running
// without a config file.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	cfg.expandEnv()
	cfg.Attachments.CacheDB = ExpandPath(cfg.Attachments.CacheDB)
	cfg.Anthropic.SystemPromptFile = ExpandPath(cfg.Anthropic.SystemPromptFile)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// expandEnv resolves placeholders that came from Defaults rather than the
// file. A placeholder whose variable is unset becomes empty.
func (c *Config) expandEnv() {
	for _, s := range []*string{
		&c.Slack.BotToken,
		&c.Slack.AppToken,
		&c.Anthropic.APIKey,
		&c.Anthropic.SystemPromptFile,
	} {
		*s = ExpandEnvVars(*s)
		if envVarPattern.MatchString(*s) {
			*s = ""
		}
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml or .yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// SystemPrompt returns the inline prompt, else the contents of the prompt
// file. A missing file yields an empty prompt.
func (c *Config) SystemPrompt() (string, error) {
	if c.Anthropic.SystemPrompt != "" {
		return c.Anthropic.SystemPrompt, nil
	}
	if c.Anthropic.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Anthropic.SystemPromptFile)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(data), nil
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Anthropic.MaxTokens < 1 {
		errs = append(errs, "anthropic.maxTokens must be >= 1")
	}
	if cfg.Anthropic.Temperature < 0 || cfg.Anthropic.Temperature > 1 {
		errs = append(errs, "anthropic.temperature must be between 0 and 1")
	}
	if cfg.Anthropic.MaxRetries < 0 {
		errs = append(errs, "anthropic.maxRetries must be >= 0")
	}
	if cfg.Anthropic.TimeoutSeconds < 1 {
		errs = append(errs, "anthropic.timeoutSeconds must be >= 1")
	}

	if cfg.Bot.Concurrency < 1 || cfg.Bot.Concurrency > 100 {
		errs = append(errs, "bot.concurrency must be between 1 and 100")
	}
	if cfg.Bot.RatePerMinute <= 0 {
		errs = append(errs, "bot.ratePerMinute must be > 0")
	}
	if cfg.Bot.RateBurst < 1 {
		errs = append(errs, "bot.rateBurst must be >= 1")
	}

	if cfg.Attachments.MaxBytes < 1 {
		errs = append(errs, "attachments.maxBytes must be >= 1")
	}
	if cfg.Attachments.CacheEnabled && cfg.Attachments.CacheDB == "" {
		errs = append(errs, "attachments.cacheDb is required when the cache is enabled")
	}
	if cfg.Attachments.CacheMaxAgeHours < 0 {
		errs = append(errs, "attachments.cacheMaxAgeHours must be >= 0")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// CheckCredentials reports missing tokens. It is separate from Validate so
// that config commands work without a full environment.
func CheckCredentials(cfg *Config) error {
	var missing []string
	if cfg.Slack.BotToken == "" {
		missing = append(missing, "slack.botToken (SLACK_BOT_TOKEN)")
	}
	if cfg.Slack.AppToken == "" {
		missing = append(missing, "slack.appToken (SLACK_APP_TOKEN)")
	}
	if cfg.Anthropic.APIKey == "" {
		missing = append(missing, "anthropic.apiKey (ANTHROPIC_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
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
