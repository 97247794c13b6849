package domain

import "context"

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind discriminates ContentPart.
type PartKind string

const (
	PartText     PartKind = "text"
	PartImage    PartKind = "image"
	PartDocument PartKind = "document"
)

// ContentPart is one typed piece of a turn.
type ContentPart struct {
	Kind          PartKind
	Text          string
	Data          []byte // raw bytes for image/document; base64 happens at the wire
	MediaType     string
	CacheBoundary bool
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart { return ContentPart{Kind: PartText, Text: text} }

// Turn is a role-tagged entry of the conversation history.
type Turn struct {
	Role  Role
	Parts []ContentPart
}

// ModelRequest is a single-shot request to the model.
type ModelRequest struct {
	System      []ContentPart // text parts only
	Turns       []Turn
	Model       string  // empty = provider default
	MaxTokens   int     // 0 = provider default
	Temperature float64 // negative = provider default
	Metadata    map[string]any
}

// Usage reports token accounting for one invocation.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
}

// ModelResponse is the assistant output of a single invocation.
type ModelResponse struct {
	Text       string
	StopReason string
	Usage      Usage
	LatencyMs  int64
}

// Model is the interface to the language model API.
type Model interface {
	Name() string
	Invoke(ctx context.Context, req ModelRequest) (*ModelResponse, error)
	Healthy(ctx context.Context) error
}
