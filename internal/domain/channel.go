package domain

import (
	"context"
	"io"
)

// Chat is the chat platform's REST surface used by the orchestrator.
type Chat interface {
	BotUserID() string
	FetchThread(ctx context.Context, channelID, threadTS string) ([]Message, error)
	PostReply(ctx context.Context, channelID, threadTS, text string, blocks []Block) (string, error)
	DeleteMessage(ctx context.Context, channelID, ts string) error
	UploadFile(ctx context.Context, channelID, threadTS, content, filename string) (*FileRef, error)
	SetReaction(ctx context.Context, channelID, ts, name string) error
	ClearReaction(ctx context.Context, channelID, ts, name string) error
}

// FileFetcher downloads private file bytes from the chat platform.
type FileFetcher interface {
	Download(ctx context.Context, url string, w io.Writer) error
}

// AttachmentGateway turns a file reference into a model content part.
// Callers treat an error as "omit this attachment".
type AttachmentGateway interface {
	Resolve(ctx context.Context, ref FileRef) (ContentPart, error)
}
