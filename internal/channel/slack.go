// Package channel connects threadbot to Slack: Socket Mode for inbound
// events and the Web API for thread reads and replies.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"threadbot/internal/domain"
)

const repliesPageSize = 200

// Slack implements domain.Chat and domain.FileFetcher, and feeds message
// events to an event bus.
type Slack struct {
	client *slack.Client
	socket *socketmode.Client
	logger *slog.Logger
	botUID string
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	APIURL   string // optional, for tests
	Debug    bool
	Logger   *slog.Logger
}

// NewSlack creates a Slack client. Call Connect before use.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := []slack.Option{slack.OptionDebug(cfg.Debug)}
	if cfg.AppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	return &Slack{
		client: slack.New(cfg.BotToken, opts...),
		logger: cfg.Logger,
	}
}

// Connect verifies the bot token and records the bot's user ID.
func (s *Slack) Connect(ctx context.Context) error {
	authResp, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID, "team", authResp.Team)
	return nil
}

// BotUserID is the bot's own Slack user ID, known after Connect.
func (s *Slack) BotUserID() string { return s.botUID }

// Start runs Socket Mode and publishes every message event to bus until ctx
// is done.
func (s *Slack) Start(ctx context.Context, bus domain.EventBus) error {
	s.socket = socketmode.New(s.client)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-s.socket.Events:
				if !ok {
					return
				}
				s.handleSocketEvent(evt, bus)
			}
		}
	}()

	err := s.socket.RunContext(ctx)
	if ctx.Err() != nil {
		s.logger.Info("slack bot disconnecting")
		return nil
	}
	return fmt.Errorf("slack socket mode: %w", err)
}

func (s *Slack) handleSocketEvent(evt socketmode.Event, bus domain.EventBus) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		s.logger.Debug("slack socket connecting")
	case socketmode.EventTypeConnected:
		s.logger.Info("slack socket connected")
	case socketmode.EventTypeConnectionError:
		s.logger.Warn("slack socket connection error", "data", evt.Data)
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			s.socket.Ack(*evt.Request)
		}
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			return
		}
		ce := chatEvent(msg)
		s.logger.Debug("slack message event",
			"event", ce.ID,
			"channel", ce.ChannelID,
			"subtype", ce.SubType,
		)
		bus.Publish(ce)
	default:
		// Acknowledge everything else to keep the socket healthy.
		if evt.Request != nil {
			s.socket.Ack(*evt.Request)
		}
	}
}

// chatEvent converts a Slack message event. The message field holds the
// current message state for both plain and message_changed events.
func chatEvent(ev *slackevents.MessageEvent) domain.ChatEvent {
	ce := domain.ChatEvent{
		ID:         uuid.NewString(),
		ChannelID:  ev.Channel,
		SubType:    ev.SubType,
		DeletedTS:  ev.DeletedTimeStamp,
		ReceivedAt: time.Now(),
	}
	if ev.Message != nil {
		m := toMessage(*ev.Message)
		if ev.SubType != domain.SubTypeMessageChanged && ev.SubType != domain.SubTypeMessageDeleted {
			// Plain events carry the fields at the top level too.
			if m.TS == "" {
				m.TS = ev.TimeStamp
			}
			if m.ThreadTS == "" {
				m.ThreadTS = ev.ThreadTimeStamp
			}
			if m.User == "" {
				m.User = ev.User
			}
		}
		ce.Message = &m
	}
	if ev.PreviousMessage != nil {
		prev := toMessage(*ev.PreviousMessage)
		ce.PreviousMessage = &prev
	}
	return ce
}

// FetchThread returns every message of the thread rooted at threadTS, oldest
// first.
func (s *Slack) FetchThread(ctx context.Context, channelID, threadTS string) ([]domain.Message, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     repliesPageSize,
	}
	var out []domain.Message
	for {
		msgs, hasMore, cursor, err := s.client.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("fetch thread %s: %w", threadTS, err)
		}
		for _, m := range msgs {
			out = append(out, toMessage(m.Msg))
		}
		if !hasMore || cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	return out, nil
}

// PostReply posts text with optional blocks into the thread and returns the
// new message's timestamp.
func (s *Slack) PostReply(ctx context.Context, channelID, threadTS, text string, blocks []domain.Block) (string, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(toSlackBlocks(blocks)...))
	}
	_, ts, err := s.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("post reply: %w", err)
	}
	return ts, nil
}

func (s *Slack) DeleteMessage(ctx context.Context, channelID, ts string) error {
	if _, _, err := s.client.DeleteMessageContext(ctx, channelID, ts); err != nil {
		return fmt.Errorf("delete message %s: %w", ts, err)
	}
	return nil
}

// UploadFile attaches content as a text file in the thread, with the
// overflow notice as its comment.
func (s *Slack) UploadFile(ctx context.Context, channelID, threadTS, content, filename string) (*domain.FileRef, error) {
	summary, err := s.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Content:         content,
		FileSize:        len(content),
		Filename:        filename,
		Title:           filename,
		InitialComment:  UploadComment,
		Channel:         channelID,
		ThreadTimestamp: threadTS,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	return &domain.FileRef{ID: summary.ID, Name: filename, MimeType: "text/plain", Size: len(content)}, nil
}

func (s *Slack) SetReaction(ctx context.Context, channelID, ts, name string) error {
	err := s.client.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, ts))
	if isSlackError(err, "already_reacted") {
		return nil
	}
	return err
}

func (s *Slack) ClearReaction(ctx context.Context, channelID, ts, name string) error {
	err := s.client.RemoveReactionContext(ctx, name, slack.NewRefToMessage(channelID, ts))
	if isSlackError(err, "no_reaction") {
		return nil
	}
	return err
}

// Download streams a private file using the bot token.
func (s *Slack) Download(ctx context.Context, url string, w io.Writer) error {
	if err := s.client.GetFileContext(ctx, url, w); err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	return nil
}

func isSlackError(err error, code string) bool {
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		return se.Err == code
	}
	return err != nil && err.Error() == code
}
