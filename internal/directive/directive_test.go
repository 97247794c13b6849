package directive

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser() *Parser {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewParser("BOT", logger)
}

func TestParse_MentionPublicAndBlock(t *testing.T) {
	text, d := testParser().Parse("<@BOT> @public {{ \"temperature\": 0.2 }}\nHello")

	assert.Equal(t, "Hello", text)
	assert.Equal(t, Directives{
		KeyBotMention:  true,
		KeyPublic:      true,
		KeyTemperature: 0.2,
	}, d)
}

func TestParse_MalformedBlockKeepsStructuralFlags(t *testing.T) {
	text, d := testParser().Parse("<@BOT> {{ bad json }}\nHi")

	assert.Equal(t, "{{ bad json }}\nHi", text)
	assert.Equal(t, Directives{KeyBotMention: true}, d)
}

func TestParse_NoMentionNoBlock(t *testing.T) {
	text, d := testParser().Parse("   just chatting  \n")

	assert.Equal(t, "just chatting", text)
	assert.Empty(t, d)
	assert.False(t, d.IsBotMention())
}

func TestParse_PrefixesInAnyOrder(t *testing.T) {
	text, d := testParser().Parse("@public   <@BOT>\n@public hi there")

	assert.Equal(t, "hi there", text)
	assert.True(t, d.IsBotMention())
	assert.True(t, d.IsPublic())
}

func TestParse_OtherMentionIsNotBotMention(t *testing.T) {
	text, d := testParser().Parse("<@SOMEONE> {{ 'system': 'x' }} hi")

	assert.Equal(t, "<@SOMEONE> {{ 'system': 'x' }} hi", text)
	assert.False(t, d.IsBotMention())
}

func TestParse_BlockSpansLines(t *testing.T) {
	in := "<@BOT> {{\n  'system': 'You are terse.',\n  'claude': False,\n  'keepalive': 5,\n}}\n\nSummarize this."
	text, d := testParser().Parse(in)

	assert.Equal(t, "Summarize this.", text)
	sys, ok := d.System()
	require.True(t, ok)
	assert.Equal(t, "You are terse.", sys)
	assert.False(t, d.ModelEnabled())
	assert.Equal(t, map[string]any{"keepalive": int64(5)}, d.Extra())
}

func TestParse_BlockCannotClearBotMention(t *testing.T) {
	_, d := testParser().Parse(`<@BOT> {{ "is_bot_mention": false, "is_public": true }} go`)

	assert.True(t, d.IsBotMention())
	assert.True(t, d.IsPublic())
}

func TestParse_BlockOverridesPublicToken(t *testing.T) {
	_, d := testParser().Parse(`<@BOT> @public {{ "is_public": False }} go`)

	assert.False(t, d.IsPublic())
}

func TestParse_BlockWithoutMention(t *testing.T) {
	text, d := testParser().Parse(`{{ "system": "hello", "keepalive": 5 }}` + "\nActual message here")

	assert.Equal(t, "Actual message here", text)
	assert.False(t, d.IsBotMention())
	assert.Equal(t, "hello", d[KeySystem])
}

func TestParse_BlockNotAtStartIsText(t *testing.T) {
	text, d := testParser().Parse(`<@BOT> please use {{ "temperature": 1 }}`)

	assert.Equal(t, `please use {{ "temperature": 1 }}`, text)
	_, ok := d.Temperature()
	assert.False(t, ok)
}

func TestDirectives_Accessors(t *testing.T) {
	d := Directives{
		KeyTemperature: int64(1),
		KeyMaxTokens:   float64(2048),
		KeyModel:       "claude-x",
		KeyModelSwitch: int64(0),
	}

	temp, ok := d.Temperature()
	require.True(t, ok)
	assert.Equal(t, 1.0, temp)

	mt, ok := d.MaxTokens()
	require.True(t, ok)
	assert.Equal(t, 2048, mt)

	model, ok := d.Model()
	require.True(t, ok)
	assert.Equal(t, "claude-x", model)

	assert.False(t, d.ModelEnabled())
	assert.True(t, Directives{}.ModelEnabled())
	assert.True(t, Directives{KeyModelSwitch: true}.ModelEnabled())
	assert.Nil(t, d.Extra())
}
