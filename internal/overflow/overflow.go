// Package overflow keeps replies within the chat platform's display limit.
package overflow

import (
	"context"
	"log/slog"

	"threadbot/internal/artifact"
	"threadbot/internal/domain"
	"threadbot/internal/metrics"
)

const (
	// Limit is the longest reply text, in characters, posted inline.
	Limit = 3000
	// Filename is the name of the uploaded full response.
	Filename = "llm_response.txt"
	// Marker ends a truncated reply.
	Marker = "\n... [Response truncated]"

	keep = 2950
)

// Sentinel replaces the text of a reply that was uploaded as a file.
const Sentinel = artifact.OverflowSentinel

// Uploader attaches a text file to a thread.
type Uploader interface {
	UploadFile(ctx context.Context, channelID, threadTS, content, filename string) (*domain.FileRef, error)
}

// Result is what should be posted for a reply.
type Result struct {
	Text string
	File *domain.FileRef // set when the full text was uploaded
}

// Uploaded reports whether the full text went out as a file.
func (r Result) Uploaded() bool { return r.File != nil }

// Policy decides between posting inline, uploading, or truncating.
type Policy struct {
	uploader Uploader
	logger   *slog.Logger
}

// NewPolicy returns a policy that uploads through u.
func NewPolicy(u Uploader, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{uploader: u, logger: logger}
}

// Apply returns text unchanged when it fits. Otherwise it uploads the full
// text into the thread and returns the sentinel, or on upload failure the
// truncated text.
func (p *Policy) Apply(ctx context.Context, channelID, threadTS, text string) Result {
	runes := []rune(text)
	if len(runes) <= Limit {
		return Result{Text: text}
	}

	file, err := p.uploader.UploadFile(ctx, channelID, threadTS, text, Filename)
	if err == nil {
		metrics.OverflowTotal.WithLabelValues("uploaded").Inc()
		p.logger.Info("response uploaded as file", "thread", threadTS, "chars", len(runes))
		if file == nil {
			file = &domain.FileRef{Name: Filename}
		}
		return Result{Text: Sentinel, File: file}
	}

	metrics.OverflowTotal.WithLabelValues("truncated").Inc()
	p.logger.Warn("response upload failed, truncating", "thread", threadTS, "err", err)
	return Result{Text: Truncate(text)}
}

// Truncate cuts text to fit the limit and appends the marker.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= Limit {
		return text
	}
	return string(runes[:keep]) + Marker
}
