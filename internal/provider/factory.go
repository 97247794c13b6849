package provider

import (
	"log/slog"
	"sync"
	"time"

	"threadbot/internal/config"
	"threadbot/internal/domain"
)

// Factory creates and caches Claude models from config, one per model name.
type Factory struct {
	cfg    config.AnthropicConfig
	logger *slog.Logger
	cache  map[string]*Claude
	mu     sync.RWMutex
}

// NewFactory creates a model factory.
func NewFactory(cfg config.AnthropicConfig, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]*Claude),
	}
}

// Get returns the model with the given name, or the configured model if name
// is empty. Models are cached so the same client is reused across calls.
func (f *Factory) Get(name string) *Claude {
	if name == "" {
		name = f.cfg.Model
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Another goroutine may have created it.
	if cached, ok := f.cache[name]; ok {
		return cached
	}

	temp := f.cfg.Temperature
	m := NewClaude(ClaudeConfig{
		APIKey:      f.cfg.APIKey,
		BaseURL:     f.cfg.BaseURL,
		Model:       name,
		MaxTokens:   f.cfg.MaxTokens,
		Temperature: &temp,
		MaxRetries:  f.cfg.MaxRetries,
		Timeout:     time.Duration(f.cfg.TimeoutSeconds) * time.Second,
		Logger:      f.logger,
	})
	f.cache[name] = m
	return m
}

// Default returns the configured model, wrapped in a failover chain when
// fallback models are configured.
func (f *Factory) Default() domain.Model {
	primary := f.Get("")
	if len(f.cfg.FallbackModels) == 0 {
		return primary
	}

	chain := []domain.Model{primary}
	seen := map[string]bool{primary.model: true}
	for _, name := range f.cfg.FallbackModels {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		chain = append(chain, f.Get(name))
	}
	if len(chain) == 1 {
		return primary
	}
	return NewFailover(chain, f.logger)
}
