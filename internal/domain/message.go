package domain

import "time"

// Message is one Slack message as seen in a thread snapshot.
type Message struct {
	TS       string
	ThreadTS string // empty for a root message
	User     string
	Text     string
	SubType  string
	Files    []FileRef
	Blocks   []Block // rendered blocks, only set on rich bot replies
}

// IsRoot reports whether the message starts a thread.
func (m Message) IsRoot() bool {
	return m.ThreadTS == "" || m.ThreadTS == m.TS
}

// FileRef points at a file attached to a message.
type FileRef struct {
	ID         string
	Name       string
	MimeType   string
	PrettyType string
	URLs       []string // candidate download URLs, preferred first
	Size       int
}

// BlockType is the kind of a rendered display block.
type BlockType string

const (
	BlockSection BlockType = "section"
	BlockDivider BlockType = "divider"
)

// Block is a platform-neutral display block. Section text is Slack mrkdwn.
type Block struct {
	Type BlockType
	Text string
}

// SectionBlock builds a mrkdwn section block.
func SectionBlock(text string) Block { return Block{Type: BlockSection, Text: text} }

// DividerBlock builds a divider block.
func DividerBlock() Block { return Block{Type: BlockDivider} }

// Event subtypes the orchestrator cares about.
const (
	SubTypeMessageChanged = "message_changed"
	SubTypeMessageDeleted = "message_deleted"
	SubTypeTombstone      = "tombstone"
	SubTypeBotMessage     = "bot_message"
)

// ChatEvent is a single inbound message event from the chat platform.
type ChatEvent struct {
	ID        string // correlation ID for logs
	ChannelID string
	SubType   string
	// Message is the current state of the message. For message_changed it is
	// the edited message; for plain messages it is the message itself.
	Message *Message
	// PreviousMessage is set for message_changed and message_deleted.
	PreviousMessage *Message
	DeletedTS       string
	ReceivedAt      time.Time
}
