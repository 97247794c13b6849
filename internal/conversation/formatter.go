// Package conversation rebuilds model conversation history from a chat
// thread snapshot.
package conversation

import (
	"context"
	"log/slog"
	"strings"

	"threadbot/internal/artifact"
	"threadbot/internal/directive"
	"threadbot/internal/domain"
)

// AsidePrefix marks a message the bot must not see.
const AsidePrefix = "@aside"

// FormatterConfig configures a Formatter.
type FormatterConfig struct {
	BotUserID   string
	Attachments domain.AttachmentGateway
	Logger      *slog.Logger
}

// Formatter turns a thread into role-tagged turns.
type Formatter struct {
	botUserID   string
	attachments domain.AttachmentGateway
	logger      *slog.Logger
}

// NewFormatter creates a formatter.
func NewFormatter(cfg FormatterConfig) *Formatter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Formatter{
		botUserID:   cfg.BotUserID,
		attachments: cfg.Attachments,
		logger:      cfg.Logger,
	}
}

// IsAside reports whether text opts the message out of the conversation.
func IsAside(text string) bool {
	t := strings.TrimSpace(text)
	return len(t) >= len(AsidePrefix) && strings.EqualFold(t[:len(AsidePrefix)], AsidePrefix)
}

// Format returns the turns for thread, oldest first. thread[0] is the
// initiator message with its directive prefix already removed. Bot messages
// become assistant turns; other participants are heard only in public
// threads. Messages with nothing to say produce no turn.
func (f *Formatter) Format(ctx context.Context, thread []domain.Message, d directive.Directives) []domain.Turn {
	if len(thread) == 0 {
		return nil
	}
	owner := thread[0].User

	turns := make([]domain.Turn, 0, len(thread))
	for _, msg := range thread {
		fromBot := msg.User == f.botUserID
		if !fromBot && msg.User != owner && !d.IsPublic() {
			continue
		}
		if IsAside(msg.Text) {
			continue
		}

		text := msg.Text
		if fromBot && len(msg.Blocks) > 0 {
			if rebuilt := artifact.FromBlocks(msg.Blocks); rebuilt != "" {
				text = rebuilt
			}
		}

		var parts []domain.ContentPart
		if text != "" && !strings.HasPrefix(text, artifact.OverflowSentinel) {
			parts = append(parts, domain.TextPart(text))
		}
		parts = append(parts, f.resolveFiles(ctx, msg)...)
		if len(parts) == 0 {
			continue
		}

		role := domain.RoleUser
		if fromBot {
			role = domain.RoleAssistant
		}
		turns = append(turns, domain.Turn{Role: role, Parts: parts})
	}
	return turns
}

func (f *Formatter) resolveFiles(ctx context.Context, msg domain.Message) []domain.ContentPart {
	if len(msg.Files) == 0 || f.attachments == nil {
		return nil
	}
	parts := make([]domain.ContentPart, 0, len(msg.Files))
	for _, ref := range msg.Files {
		part, err := f.attachments.Resolve(ctx, ref)
		if err != nil {
			f.logger.Warn("attachment skipped",
				"file", ref.Name,
				"message", msg.TS,
				"err", err,
			)
			continue
		}
		parts = append(parts, part)
	}
	return parts
}
