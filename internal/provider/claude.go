// Package provider implements domain.Model on top of the Anthropic Messages API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"threadbot/internal/domain"
	"threadbot/internal/metrics"
)

const (
	DefaultModel       = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens   = 8192
	DefaultTemperature = 0.7
	defaultHTTPTimeout = 300 * time.Second
)

// Claude implements domain.Model for the Anthropic Messages API.
type Claude struct {
	client      anthropic.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

type ClaudeConfig struct {
	APIKey      string
	BaseURL     string // optional, for proxies and tests
	Model       string
	MaxTokens   int
	Temperature *float64
	MaxRetries  int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// NewClaude creates a new Claude model.
func NewClaude(cfg ClaudeConfig) *Claude {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	temp := DefaultTemperature
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(cfg.Timeout)
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Claude{
		client:      anthropic.NewClient(opts...),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: temp,
		logger:      cfg.Logger,
	}
}

func (c *Claude) Name() string { return "claude:" + c.model }

// Healthy sends a one-token request.
func (c *Claude) Healthy(ctx context.Context) error {
	if c.apiKey == "" {
		return errors.New("claude: no API key configured")
	}
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("hi"))},
	})
	return mapError(err)
}

// Invoke sends one request and returns the concatenated text output.
func (c *Claude) Invoke(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	params := c.buildParams(req)
	model := string(params.Model)

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	latency := time.Since(start)
	metrics.ModelLatency.Observe(latency.Seconds())
	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues(model, "error").Inc()
		return nil, mapError(err)
	}
	metrics.ModelRequestsTotal.WithLabelValues(model, "ok").Inc()

	resp := convertResponse(msg)
	resp.LatencyMs = latency.Milliseconds()

	metrics.ModelTokens.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	metrics.ModelTokens.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))
	metrics.ModelTokens.WithLabelValues("cache_read").Add(float64(resp.Usage.CacheReadTokens))
	metrics.ModelTokens.WithLabelValues("cache_creation").Add(float64(resp.Usage.CacheCreationTokens))

	c.logger.Info("model usage",
		"model", model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"cache_read_tokens", resp.Usage.CacheReadTokens,
		"cache_creation_tokens", resp.Usage.CacheCreationTokens,
		"stop_reason", resp.StopReason,
		"latency_ms", resp.LatencyMs,
	)
	if resp.Text == "" {
		return nil, fmt.Errorf("claude: empty response (stop_reason=%s)", resp.StopReason)
	}
	return resp, nil
}

func (c *Claude) buildParams(req domain.ModelRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temp := req.Temperature
	if temp < 0 {
		temp = c.temperature
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temp),
		System:      convertSystem(req.System),
		Messages:    convertTurns(req.Turns, c.logger),
	}
	if uid, ok := req.Metadata[MetadataUserID].(string); ok && uid != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(uid)}
	}
	return params
}
