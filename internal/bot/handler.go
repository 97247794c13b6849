package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"strings"
	"time"

	"threadbot/internal/artifact"
	"threadbot/internal/conversation"
	"threadbot/internal/directive"
	"threadbot/internal/domain"
	"threadbot/internal/metrics"
	"threadbot/internal/overflow"
	"threadbot/internal/provider"
)

const (
	// ThinkingReaction marks the triggering message while the model runs.
	ThinkingReaction = "thinking_face"

	dateTimePlaceholder = "{{currentDateTime}}"
	dateTimeLayout      = "Monday, January 02, 2006"
	errorReplyFormat    = "I encountered an error processing your message: %v"
)

// HandlerConfig holds the collaborators of a Handler.
type HandlerConfig struct {
	Chat         domain.Chat
	Model        domain.Model
	Attachments  domain.AttachmentGateway
	Limiter      Limiter // optional
	SystemPrompt string
	Now          func() time.Time // optional, for tests
	Logger       *slog.Logger
}

// Handler turns one chat event into at most one reply, or a cascade of
// deletes.
type Handler struct {
	chat      domain.Chat
	model     domain.Model
	limiter   Limiter
	parser    *directive.Parser
	formatter *conversation.Formatter
	overflow  *overflow.Policy
	system    string
	botUserID string
	logger    *slog.Logger
}

// NewHandler creates a handler for the bot identity reported by cfg.Chat.
// The system prompt's date placeholder is filled in once, here.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	botUID := cfg.Chat.BotUserID()
	return &Handler{
		chat:    cfg.Chat,
		model:   cfg.Model,
		limiter: cfg.Limiter,
		parser:  directive.NewParser(botUID, cfg.Logger),
		formatter: conversation.NewFormatter(conversation.FormatterConfig{
			BotUserID:   botUID,
			Attachments: cfg.Attachments,
			Logger:      cfg.Logger,
		}),
		overflow:  overflow.NewPolicy(cfg.Chat, cfg.Logger),
		system:    ExpandSystemPrompt(cfg.SystemPrompt, cfg.Now()),
		botUserID: botUID,
		logger:    cfg.Logger,
	}
}

// ExpandSystemPrompt substitutes the current date into prompt.
func ExpandSystemPrompt(prompt string, now time.Time) string {
	return strings.ReplaceAll(prompt, dateTimePlaceholder, now.Format(dateTimeLayout))
}

// Handle processes ev. Failures on the reply path are reported in the
// thread and returned; panics are recovered into errors.
func (h *Handler) Handle(ctx context.Context, ev domain.ChatEvent) error {
	c := Classify(ev, h.parser)
	metrics.EventsTotal.WithLabelValues(c.State.String()).Inc()

	switch c.State {
	case Ignored:
		h.logger.Debug("event ignored", "event", ev.ID, "subtype", ev.SubType)
		return nil
	case MessageDeleted:
		return h.cascadeDelete(ctx, ev)
	}
	return h.reply(ctx, ev, c)
}

// conversationRequest is what reply needs to call the model.
type conversationRequest struct {
	owner      string
	directives directive.Directives
	turns      []domain.Turn
}

func (h *Handler) reply(ctx context.Context, ev domain.ChatEvent, c Classification) (err error) {
	msg := *ev.Message
	threadTS := msg.ThreadTS
	if msg.IsRoot() {
		threadTS = msg.TS
	}
	log := h.logger.With("event", ev.ID, "channel", ev.ChannelID, "thread", threadTS)

	defer func() {
		if r := recover(); r != nil {
			log.Error("reply panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			log.Info("reply abandoned", "err", err)
		default:
			metrics.RepliesTotal.WithLabelValues("error").Inc()
			h.reportError(ctx, log, ev.ChannelID, threadTS, err)
		}
	}()

	var conv *conversationRequest
	if hasParent(msg) {
		conv, err = h.threadConversation(ctx, ev.ChannelID, msg)
	} else {
		text, d := c.Text, c.Directives
		if c.State != NewThread {
			text, d = h.parser.Parse(msg.Text)
		}
		conv = h.rootConversation(ctx, msg, text, d)
	}
	if err != nil || conv == nil {
		return err
	}

	if len(conv.turns) == 0 {
		log.Debug("nothing to send")
		metrics.RepliesTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if conv.turns[len(conv.turns)-1].Role == domain.RoleAssistant {
		log.Debug("thread already answered")
		metrics.RepliesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	req := h.buildRequest(conv)
	if log.Enabled(ctx, slog.LevelDebug) {
		log.Debug("model request", "model", req.Model, "turns", conversation.Dump(req.Turns))
	}

	if !conv.directives.ModelEnabled() {
		log.Info("model disabled for thread")
		metrics.RepliesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	if err := h.chat.SetReaction(ctx, ev.ChannelID, msg.TS, ThinkingReaction); err != nil {
		log.Warn("set reaction failed", "err", err)
	}
	resp, err := h.model.Invoke(ctx, req)
	if cerr := h.chat.ClearReaction(ctx, ev.ChannelID, msg.TS, ThinkingReaction); cerr != nil {
		log.Warn("clear reaction failed", "err", cerr)
	}
	if err != nil {
		return err
	}

	out := h.overflow.Apply(ctx, ev.ChannelID, threadTS, resp.Text)
	if out.Uploaded() {
		metrics.RepliesTotal.WithLabelValues("uploaded").Inc()
		return nil
	}

	if _, err := h.chat.PostReply(ctx, ev.ChannelID, threadTS, fallbackText(out.Text), artifact.Render(out.Text)); err != nil {
		return err
	}
	metrics.RepliesTotal.WithLabelValues("ok").Inc()
	log.Info("reply posted", "chars", len([]rune(out.Text)), "latency_ms", resp.LatencyMs)
	return nil
}

// rootConversation handles a message that opens a thread, given its parsed
// text and directives. Only that message is sent. It returns nil when the
// bot is not addressed.
func (h *Handler) rootConversation(ctx context.Context, msg domain.Message, text string, d directive.Directives) *conversationRequest {
	if !d.IsBotMention() {
		return nil
	}
	msg.Text = text
	return &conversationRequest{
		owner:      msg.User,
		directives: d,
		turns:      h.formatter.Format(ctx, []domain.Message{msg}, d),
	}
}

// threadConversation handles a message inside a thread. The whole thread is
// replayed under the directives of its first message. It returns nil when
// the bot is not part of the thread or the author is not heard.
func (h *Handler) threadConversation(ctx context.Context, channelID string, msg domain.Message) (*conversationRequest, error) {
	thread, err := h.chat.FetchThread(ctx, channelID, msg.ThreadTS)
	if err != nil {
		return nil, err
	}
	if len(thread) == 0 {
		return nil, nil
	}

	text, d := h.parser.Parse(thread[0].Text)
	if !d.IsBotMention() {
		return nil, nil
	}
	owner := thread[0].User
	if !d.IsPublic() && msg.User != owner {
		return nil, nil
	}

	thread[0].Text = text
	return &conversationRequest{
		owner:      owner,
		directives: d,
		turns:      h.formatter.Format(ctx, thread, d),
	}, nil
}

func (h *Handler) buildRequest(conv *conversationRequest) domain.ModelRequest {
	d := conv.directives
	system := h.system
	if s, ok := d.System(); ok {
		system = s
	}
	sys, turns := conversation.ApplyCacheBoundaries(system, conv.turns)

	req := domain.ModelRequest{
		System:      sys,
		Turns:       turns,
		Temperature: -1,
		Metadata:    map[string]any{},
	}
	if t, ok := d.Temperature(); ok {
		req.Temperature = t
	}
	if n, ok := d.MaxTokens(); ok {
		req.MaxTokens = n
	}
	if m, ok := d.Model(); ok {
		req.Model = m
	}
	maps.Copy(req.Metadata, d.Extra())
	req.Metadata[provider.MetadataUserID] = conv.owner
	return req
}

func (h *Handler) reportError(ctx context.Context, log *slog.Logger, channelID, threadTS string, cause error) {
	text := fmt.Sprintf(errorReplyFormat, cause)
	if _, err := h.chat.PostReply(context.WithoutCancel(ctx), channelID, threadTS, text, nil); err != nil {
		log.Error("error reply failed", "err", err)
	}
}

// fallbackText is the plain text shown where blocks cannot be rendered.
func fallbackText(text string) string {
	r := []rune(text)
	if len(r) <= overflow.Limit {
		return text
	}
	return string(r[:overflow.Limit])
}
