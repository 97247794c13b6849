package bot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"threadbot/internal/domain"
)

const botUID = "UBOT"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger(level slog.Level) (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})), buf
}

type postedReply struct {
	channel  string
	threadTS string
	text     string
	blocks   []domain.Block
}

// fakeChat records every write and serves a fixed thread.
type fakeChat struct {
	mu sync.Mutex

	thread    []domain.Message
	fetchErr  error
	postErr   error
	uploadErr error
	deleteErr map[string]error

	fetched   []string
	posts     []postedReply
	deleted   []string
	uploads   []string
	reactions []string
}

func (c *fakeChat) BotUserID() string { return botUID }

func (c *fakeChat) FetchThread(_ context.Context, _, threadTS string) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = append(c.fetched, threadTS)
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return append([]domain.Message(nil), c.thread...), nil
}

func (c *fakeChat) PostReply(_ context.Context, channelID, threadTS, text string, blocks []domain.Block) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postErr != nil {
		return "", c.postErr
	}
	c.posts = append(c.posts, postedReply{channel: channelID, threadTS: threadTS, text: text, blocks: blocks})
	return "999.0", nil
}

func (c *fakeChat) DeleteMessage(_ context.Context, _, ts string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.deleteErr[ts]; err != nil {
		return err
	}
	c.deleted = append(c.deleted, ts)
	return nil
}

func (c *fakeChat) UploadFile(_ context.Context, _, _, content, filename string) (*domain.FileRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uploadErr != nil {
		return nil, c.uploadErr
	}
	c.uploads = append(c.uploads, content)
	return &domain.FileRef{ID: "F1", Name: filename}, nil
}

func (c *fakeChat) SetReaction(_ context.Context, _, ts, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, "+"+name+"@"+ts)
	return nil
}

func (c *fakeChat) ClearReaction(_ context.Context, _, ts, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, "-"+name+"@"+ts)
	return errors.New("no_permission")
}

// fakeModel answers with a fixed text, or runs respond when set.
type fakeModel struct {
	mu       sync.Mutex
	text     string
	err      error
	respond  func(req domain.ModelRequest) (*domain.ModelResponse, error)
	requests []domain.ModelRequest
}

func (m *fakeModel) Name() string { return "fake" }
func (m *fakeModel) Healthy(_ context.Context) error { return nil }

func (m *fakeModel) Invoke(_ context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.respond != nil {
		return m.respond(req)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ModelResponse{Text: m.text, StopReason: "end_turn"}, nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// countingLimiter records waits.
type countingLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *countingLimiter) Wait(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return l.err
}

func msg(ts, threadTS, user, text string) domain.Message {
	return domain.Message{TS: ts, ThreadTS: threadTS, User: user, Text: text}
}

func plainEvent(m domain.Message) domain.ChatEvent {
	return domain.ChatEvent{ID: "ev-" + m.TS, ChannelID: "C1", Message: &m}
}
