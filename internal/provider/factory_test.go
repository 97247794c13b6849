package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadbot/internal/config"
)

func TestFactory_GetCachesByModel(t *testing.T) {
	f := NewFactory(config.AnthropicConfig{APIKey: "k", Model: "claude-a", MaxTokens: 100, Temperature: 0.3}, testLogger())

	a := f.Get("")
	assert.Same(t, a, f.Get("claude-a"))
	assert.Equal(t, "claude:claude-a", a.Name())
	assert.Equal(t, 100, a.maxTokens)
	assert.Equal(t, 0.3, a.temperature)

	b := f.Get("claude-b")
	assert.NotSame(t, a, b)
	assert.Equal(t, "claude:claude-b", b.Name())
}

func TestFactory_DefaultWithoutFallbacks(t *testing.T) {
	f := NewFactory(config.AnthropicConfig{Model: "claude-a"}, testLogger())
	_, ok := f.Default().(*Claude)
	assert.True(t, ok)
}

func TestFactory_DefaultBuildsFailoverChain(t *testing.T) {
	f := NewFactory(config.AnthropicConfig{
		Model:          "claude-a",
		FallbackModels: []string{"claude-b", "claude-a", "", "claude-b", "claude-c"},
	}, testLogger())

	fo, ok := f.Default().(*Failover)
	require.True(t, ok)
	assert.Equal(t, "failover(claude:claude-a→claude:claude-b→claude:claude-c)", fo.Name())
}

func TestFactory_DefaultIgnoresSelfFallback(t *testing.T) {
	f := NewFactory(config.AnthropicConfig{Model: "claude-a", FallbackModels: []string{"claude-a"}}, testLogger())
	_, ok := f.Default().(*Claude)
	assert.True(t, ok)
}
