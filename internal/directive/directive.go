// Package directive extracts the per-thread configuration that a user writes at
// the start of the message that opens a thread:
//
//	<@BOT> @public {{ "temperature": 0.2, "system": "Answer in French" }}
//	What is a monad?
//
// The mention and @public tokens may appear in any order before the optional
// {{ ... }} block. The block body is a key/value literal, never evaluated.
package directive

import (
	"log/slog"
	"regexp"
	"strings"
)

// Recognized directive keys.
const (
	KeyBotMention  = "is_bot_mention"
	KeyPublic      = "is_public"
	KeySystem      = "system"
	KeyTemperature = "temperature"
	KeyModelSwitch = "claude"
	KeyMaxTokens   = "max_tokens"
	KeyModel       = "model"
)

// PublicToken marks a thread as open to every channel member.
const PublicToken = "@public"

var knownKeys = map[string]bool{
	KeyBotMention:  true,
	KeyPublic:      true,
	KeySystem:      true,
	KeyTemperature: true,
	KeyModelSwitch: true,
	KeyMaxTokens:   true,
	KeyModel:       true,
}

// blockPattern matches a {{ ... }} block at the start of the text. The body
// ends at the first "}}".
var blockPattern = regexp.MustCompile(`(?s)^\s*\{\{(.+?)\}\}\s*(.*)`)

// Parser strips directive prefixes for one bot identity.
type Parser struct {
	botUserID string
	mention   string
	logger    *slog.Logger
}

// NewParser returns a parser for the bot with the given Slack user ID.
func NewParser(botUserID string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{botUserID: botUserID, mention: MentionToken(botUserID), logger: logger}
}

// BotUserID is the identity the parser recognizes mentions of.
func (p *Parser) BotUserID() string { return p.botUserID }

// MentionToken is the Slack markup for a mention of userID.
func MentionToken(userID string) string {
	return "<@" + userID + ">"
}

// Parse returns the cleaned message text and its directives. It never fails:
// a malformed block is logged and left in the text, and only the structural
// flags survive.
func (p *Parser) Parse(text string) (string, Directives) {
	d := Directives{}

	for {
		text = strings.TrimSpace(text)
		switch {
		case p.mention != "<@>" && strings.HasPrefix(text, p.mention):
			d[KeyBotMention] = true
			text = text[len(p.mention):]
		case strings.HasPrefix(text, PublicToken):
			d[KeyPublic] = true
			text = text[len(PublicToken):]
		default:
			return p.parseBlock(text, d)
		}
	}
}

func (p *Parser) parseBlock(text string, d Directives) (string, Directives) {
	m := blockPattern.FindStringSubmatch(text)
	if m == nil {
		return text, d
	}

	values, err := parseKeyValues(m[1])
	if err != nil {
		p.logger.Warn("invalid directive block", "err", err)
		return text, d
	}
	for k, v := range values {
		if k == KeyBotMention {
			continue
		}
		d[k] = v
	}
	return strings.TrimSpace(m[2]), d
}

// Directives is the option map attached to a thread.
type Directives map[string]any

// IsBotMention reports whether the thread was opened by mentioning the bot.
func (d Directives) IsBotMention() bool { return truthy(d[KeyBotMention]) }

// IsPublic reports whether participants other than the owner are visible.
func (d Directives) IsPublic() bool { return truthy(d[KeyPublic]) }

// ModelEnabled is false only when the kill switch is explicitly off.
func (d Directives) ModelEnabled() bool {
	v, ok := d[KeyModelSwitch]
	if !ok || v == nil {
		return true
	}
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	return true
}

// System returns the system prompt override.
func (d Directives) System() (string, bool) {
	s, ok := d[KeySystem].(string)
	return s, ok
}

// Temperature returns the sampling temperature override.
func (d Directives) Temperature() (float64, bool) {
	return number(d[KeyTemperature])
}

// MaxTokens returns the output token limit override.
func (d Directives) MaxTokens() (int, bool) {
	f, ok := number(d[KeyMaxTokens])
	if !ok || f <= 0 {
		return 0, false
	}
	return int(f), true
}

// Model returns the model name override.
func (d Directives) Model() (string, bool) {
	s, ok := d[KeyModel].(string)
	return s, ok && s != ""
}

// Extra returns the keys the bot does not interpret itself.
func (d Directives) Extra() map[string]any {
	var out map[string]any
	for k, v := range d {
		if knownKeys[k] {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}
