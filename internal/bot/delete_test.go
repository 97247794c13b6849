package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadbot/internal/domain"
)

func fiveMessageThread() []domain.Message {
	return []domain.Message{
		msg("100.000100", "100.000100", "U1", "<@UBOT> q1"),
		msg("100.000200", "100.000100", botUID, "a1"),
		msg("100.000300", "100.000100", "U1", "q2"),
		msg("100.000400", "100.000100", botUID, "a2"),
		msg("100.000500", "100.000100", botUID, "a3"),
	}
}

func deleteEvent(prev domain.Message) domain.ChatEvent {
	return domain.ChatEvent{
		ID:              "del",
		ChannelID:       "C1",
		SubType:         domain.SubTypeMessageDeleted,
		PreviousMessage: &prev,
		DeletedTS:       prev.TS,
	}
}

func TestCascadeDelete_RemovesLaterBotReplies(t *testing.T) {
	thread := fiveMessageThread()
	// Slack no longer lists the deleted message.
	chat := &fakeChat{thread: append(append([]domain.Message(nil), thread[:2]...), thread[3:]...)}
	h := newTestHandler(chat, &fakeModel{}, nil)

	require.NoError(t, h.Handle(context.Background(), deleteEvent(thread[2])))

	assert.Equal(t, []string{"100.000100"}, chat.fetched)
	assert.Equal(t, []string{"100.000400", "100.000500"}, chat.deleted)
	assert.Empty(t, chat.posts)
}

func TestCascadeDelete_TombstoneEdit(t *testing.T) {
	thread := fiveMessageThread()
	tomb := domain.Message{TS: thread[2].TS, ThreadTS: thread[2].ThreadTS, SubType: domain.SubTypeTombstone}
	chat := &fakeChat{thread: thread}
	h := newTestHandler(chat, &fakeModel{}, nil)

	ev := domain.ChatEvent{
		ID:              "edit",
		ChannelID:       "C1",
		SubType:         domain.SubTypeMessageChanged,
		Message:         &tomb,
		PreviousMessage: &thread[2],
	}
	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Equal(t, []string{"100.000400", "100.000500"}, chat.deleted)
}

func TestCascadeDelete_ContinuesPastFailures(t *testing.T) {
	thread := fiveMessageThread()
	chat := &fakeChat{
		thread:    thread,
		deleteErr: map[string]error{"100.000400": errors.New("cant_delete_message")},
	}
	h := newTestHandler(chat, &fakeModel{}, nil)

	require.NoError(t, h.Handle(context.Background(), deleteEvent(thread[2])))
	assert.Equal(t, []string{"100.000500"}, chat.deleted)
}

func TestCascadeDelete_Ignored(t *testing.T) {
	tests := []struct {
		name string
		prev domain.Message
	}{
		{"root message", msg("100.0", "", "U1", "hello")},
		{"already tombstoned", domain.Message{TS: "100.0", ThreadTS: "100.0", SubType: domain.SubTypeTombstone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{thread: fiveMessageThread()}
			h := newTestHandler(chat, &fakeModel{}, nil)

			require.NoError(t, h.Handle(context.Background(), deleteEvent(tt.prev)))
			assert.Empty(t, chat.fetched)
			assert.Empty(t, chat.deleted)
		})
	}
}

func TestCascadeDelete_NothingAfterDeleted(t *testing.T) {
	chat := &fakeChat{thread: fiveMessageThread()[:2]}
	h := newTestHandler(chat, &fakeModel{}, nil)

	require.NoError(t, h.Handle(context.Background(), deleteEvent(msg("100.000900", "100.000100", "U1", "late"))))
	assert.Empty(t, chat.deleted)
}

func TestCascadeDelete_FetchError(t *testing.T) {
	chat := &fakeChat{fetchErr: errors.New("ratelimited")}
	h := newTestHandler(chat, &fakeModel{}, nil)

	err := h.Handle(context.Background(), deleteEvent(fiveMessageThread()[2]))
	assert.ErrorContains(t, err, "ratelimited")
	assert.Empty(t, chat.posts)
}
