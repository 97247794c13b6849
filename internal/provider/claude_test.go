package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadbot/internal/domain"
)

const okBody = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
	"model": "claude-3-5-sonnet-20241022",
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 10, "output_tokens": 5, "cache_read_input_tokens": 3, "cache_creation_input_tokens": 2}
}`

// captureServer answers every request with status/body and records the
// decoded request payload.
func captureServer(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func newTestClaude(url string) *Claude {
	return NewClaude(ClaudeConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Logger:  testLogger(),
	})
}

func TestInvoke_SendsTurnsAndCacheControl(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, okBody)
	c := newTestClaude(srv.URL)

	resp, err := c.Invoke(context.Background(), domain.ModelRequest{
		System: []domain.ContentPart{{Kind: domain.PartText, Text: "be brief", CacheBoundary: true}},
		Turns: []domain.Turn{
			{Role: domain.RoleUser, Parts: []domain.ContentPart{
				domain.TextPart("what is this"),
				{Kind: domain.PartImage, Data: []byte("img"), MediaType: "image/png", CacheBoundary: true},
			}},
			{Role: domain.RoleAssistant, Parts: []domain.ContentPart{domain.TextPart("a cat")}},
			{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("sure?")}},
		},
		Temperature: 0.2,
		Metadata:    map[string]any{MetadataUserID: "U1", "keepalive": int64(5)},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, domain.Usage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 3, CacheCreationTokens: 2}, resp.Usage)

	req := *got
	assert.Equal(t, DefaultModel, req["model"])
	assert.Equal(t, float64(DefaultMaxTokens), req["max_tokens"])
	assert.Equal(t, 0.2, req["temperature"])
	assert.Equal(t, map[string]any{"user_id": "U1"}, req["metadata"])

	system := req["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, map[string]any{"type": "ephemeral"}, system[0].(map[string]any)["cache_control"])

	messages := req["messages"].([]any)
	require.Len(t, messages, 3)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	content := first["content"].([]any)
	require.Len(t, content, 2)
	assert.Nil(t, content[0].(map[string]any)["cache_control"])
	image := content[1].(map[string]any)
	assert.Equal(t, "image", image["type"])
	assert.Equal(t, map[string]any{"type": "ephemeral"}, image["cache_control"])
	source := image["source"].(map[string]any)
	assert.Equal(t, "aW1n", source["data"])
	assert.Equal(t, "image/png", source["media_type"])
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
}

func TestInvoke_RequestOverrides(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, okBody)
	c := newTestClaude(srv.URL)

	_, err := c.Invoke(context.Background(), domain.ModelRequest{
		Turns:       []domain.Turn{{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("hi")}}},
		Model:       "claude-other",
		MaxTokens:   100,
		Temperature: -1,
	})
	require.NoError(t, err)

	req := *got
	assert.Equal(t, "claude-other", req["model"])
	assert.Equal(t, float64(100), req["max_tokens"])
	assert.Equal(t, DefaultTemperature, req["temperature"])
	assert.NotContains(t, req, "metadata")
}

func TestInvoke_PDFDocument(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, okBody)
	c := newTestClaude(srv.URL)

	_, err := c.Invoke(context.Background(), domain.ModelRequest{
		Turns: []domain.Turn{{Role: domain.RoleUser, Parts: []domain.ContentPart{
			{Kind: domain.PartDocument, Data: []byte("%PDF"), MediaType: "application/pdf"},
		}}},
		Temperature: -1,
	})
	require.NoError(t, err)

	content := (*got)["messages"].([]any)[0].(map[string]any)["content"].([]any)
	doc := content[0].(map[string]any)
	assert.Equal(t, "document", doc["type"])
	assert.Equal(t, "application/pdf", doc["source"].(map[string]any)["media_type"])
}

func TestInvoke_MapsErrors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, ErrRateLimit},
		{529, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`, ErrUnavailable},
		{http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`, ErrAuth},
		{http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, ErrBadRequest},
	}
	for _, tt := range tests {
		srv, _ := captureServer(t, tt.status, tt.body)
		c := newTestClaude(srv.URL)

		_, err := c.Invoke(context.Background(), domain.ModelRequest{
			Turns:       []domain.Turn{{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("hi")}}},
			Temperature: -1,
		})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

func TestConvertTurns_DropsEmptyParts(t *testing.T) {
	msgs := convertTurns([]domain.Turn{
		{Role: domain.RoleUser, Parts: []domain.ContentPart{{Kind: domain.PartImage}}},
		{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("kept")}},
	}, testLogger())
	assert.Len(t, msgs, 1)
}

func TestImageMediaType(t *testing.T) {
	assert.Equal(t, "image/jpeg", imageMediaType("image/JPG"))
	assert.Equal(t, "image/webp", imageMediaType("image/webp"))
	assert.Equal(t, "image/png", imageMediaType("image/heic"))
}
