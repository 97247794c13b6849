// Package bot decides what to do with each chat event and drives the
// model round trip for the threads it takes part in.
package bot

import (
	"threadbot/internal/directive"
	"threadbot/internal/domain"
)

// State is the classification of an inbound event.
type State int

const (
	Ignored State = iota
	NewThread
	ThreadReply
	MessageEdited
	MessageDeleted
)

func (s State) String() string {
	switch s {
	case NewThread:
		return "new_thread"
	case ThreadReply:
		return "thread_reply"
	case MessageEdited:
		return "message_edited"
	case MessageDeleted:
		return "message_deleted"
	}
	return "ignored"
}

// Subtypes that never carry a user message worth answering.
var ignoredSubTypes = map[string]bool{
	domain.SubTypeBotMessage: true,
	"message_replied":        true,
	"channel_join":           true,
	"channel_leave":          true,
}

// Classification is the outcome of Classify. For NewThread it carries the
// root message already stripped of its directive block.
type Classification struct {
	State      State
	Text       string
	Directives directive.Directives
}

// Classify decides how ev is handled. Whether a thread reply is actually
// answered depends on the thread's first message and is settled later.
func Classify(ev domain.ChatEvent, p *directive.Parser) Classification {
	if isDeletion(ev) {
		return Classification{State: MessageDeleted}
	}
	if ignoredSubTypes[ev.SubType] || ev.Message == nil {
		return Classification{State: Ignored}
	}
	msg := ev.Message
	if ignoredSubTypes[msg.SubType] || msg.User == "" || msg.User == p.BotUserID() {
		return Classification{State: Ignored}
	}

	if ev.SubType == domain.SubTypeMessageChanged {
		if ev.PreviousMessage != nil && ev.PreviousMessage.Text == msg.Text {
			return Classification{State: Ignored}
		}
		return Classification{State: MessageEdited}
	}

	if hasParent(*msg) {
		return Classification{State: ThreadReply}
	}
	text, d := p.Parse(msg.Text)
	if !d.IsBotMention() {
		return Classification{State: Ignored}
	}
	return Classification{State: NewThread, Text: text, Directives: d}
}

func isDeletion(ev domain.ChatEvent) bool {
	switch ev.SubType {
	case domain.SubTypeMessageDeleted:
		return true
	case domain.SubTypeMessageChanged:
		return ev.Message != nil && ev.Message.SubType == domain.SubTypeTombstone
	}
	return false
}

// hasParent reports whether msg belongs to a thread. A thread root that
// already has replies carries its own ts as thread_ts and counts as well.
func hasParent(msg domain.Message) bool {
	return msg.ThreadTS != ""
}
