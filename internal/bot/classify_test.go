package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"threadbot/internal/directive"
	"threadbot/internal/domain"
)

func TestClassify(t *testing.T) {
	p := directive.NewParser(botUID, testLogger())
	root := msg("100.0", "", "U1", "<@UBOT> hello")
	reply := msg("101.0", "100.0", "U2", "and then?")
	edited := msg("101.0", "100.0", "U1", "new text")
	prevSame := msg("101.0", "100.0", "U1", "new text")
	prevOld := msg("101.0", "100.0", "U1", "old text")
	tombstone := domain.Message{TS: "100.0", ThreadTS: "100.0", SubType: domain.SubTypeTombstone, Text: "This message was deleted."}
	fromBot := msg("102.0", "100.0", botUID, "answer")

	tests := []struct {
		name string
		ev   domain.ChatEvent
		want State
	}{
		{"mention opens thread", plainEvent(root), NewThread},
		{"no mention at root", plainEvent(msg("100.0", "", "U1", "just chatting")), Ignored},
		{"mention not at start", plainEvent(msg("100.0", "", "U1", "hey <@UBOT>")), Ignored},
		{"reply in thread", plainEvent(reply), ThreadReply},
		{"own message", plainEvent(fromBot), Ignored},
		{"bot_message subtype", domain.ChatEvent{SubType: domain.SubTypeBotMessage, Message: &reply}, Ignored},
		{"no message", domain.ChatEvent{SubType: "message_replied"}, Ignored},
		{"edit with new text", domain.ChatEvent{SubType: domain.SubTypeMessageChanged, Message: &edited, PreviousMessage: &prevOld}, MessageEdited},
		{"edit without change", domain.ChatEvent{SubType: domain.SubTypeMessageChanged, Message: &edited, PreviousMessage: &prevSame}, Ignored},
		{"edit without previous", domain.ChatEvent{SubType: domain.SubTypeMessageChanged, Message: &edited}, MessageEdited},
		{"deleted", domain.ChatEvent{SubType: domain.SubTypeMessageDeleted, PreviousMessage: &prevOld, DeletedTS: "101.0"}, MessageDeleted},
		{"changed into tombstone", domain.ChatEvent{SubType: domain.SubTypeMessageChanged, Message: &tombstone, PreviousMessage: &prevOld}, MessageDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ev, p).State)
		})
	}
}

func TestClassify_NewThreadCarriesParsedRoot(t *testing.T) {
	p := directive.NewParser(botUID, testLogger())
	c := Classify(plainEvent(msg("100.0", "", "U1", "<@UBOT> {{ 'temperature': 0.5 }} hello")), p)

	assert.Equal(t, NewThread, c.State)
	assert.Equal(t, "hello", c.Text)
	temp, ok := c.Directives.Temperature()
	assert.True(t, ok)
	assert.Equal(t, 0.5, temp)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "new_thread", NewThread.String())
	assert.Equal(t, "message_deleted", MessageDeleted.String())
	assert.Equal(t, "ignored", State(42).String())
}
