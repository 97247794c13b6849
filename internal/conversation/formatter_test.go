package conversation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadbot/internal/artifact"
	"threadbot/internal/directive"
	"threadbot/internal/domain"
)

const bot = "UBOT"

type fakeGateway struct {
	parts map[string]domain.ContentPart
}

func (g fakeGateway) Resolve(_ context.Context, ref domain.FileRef) (domain.ContentPart, error) {
	p, ok := g.parts[ref.ID]
	if !ok {
		return domain.ContentPart{}, errors.New("download failed")
	}
	return p, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestFormatter(gw domain.AttachmentGateway) *Formatter {
	return NewFormatter(FormatterConfig{BotUserID: bot, Attachments: gw, Logger: testLogger()})
}

func user(text string) domain.Turn {
	return domain.Turn{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart(text)}}
}

func assistant(text string) domain.Turn {
	return domain.Turn{Role: domain.RoleAssistant, Parts: []domain.ContentPart{domain.TextPart(text)}}
}

func visibilityThread() []domain.Message {
	return []domain.Message{
		{TS: "1", User: "A", Text: "hi"},
		{TS: "2", User: bot, Text: "hello"},
		{TS: "3", User: "B", Text: "me too"},
		{TS: "4", User: "A", Text: "@aside ignore this"},
		{TS: "5", User: "A", Text: "continue"},
	}
}

func TestFormat_PrivateThreadDropsOtherUsersAndAsides(t *testing.T) {
	got := newTestFormatter(nil).Format(context.Background(), visibilityThread(), directive.Directives{})

	want := []domain.Turn{user("hi"), assistant("hello"), user("continue")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_PublicThreadIncludesOtherUsers(t *testing.T) {
	d := directive.Directives{directive.KeyPublic: true}
	got := newTestFormatter(nil).Format(context.Background(), visibilityThread(), d)

	want := []domain.Turn{user("hi"), assistant("hello"), user("me too"), user("continue")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_AsideIsCaseInsensitive(t *testing.T) {
	thread := []domain.Message{
		{TS: "1", User: "A", Text: "hi"},
		{TS: "2", User: "A", Text: "  @ASIDE psst"},
	}
	got := newTestFormatter(nil).Format(context.Background(), thread, directive.Directives{})
	assert.Len(t, got, 1)
}

func TestFormat_RebuildsBotBlocks(t *testing.T) {
	reply := "Sure.\n<antArtifact identifier=\"x\" type=\"application/vnd.ant.code\" language=\"go\" title=\"Main\">package main</antArtifact>"
	thread := []domain.Message{
		{TS: "1", User: "A", Text: "write go"},
		{TS: "2", User: bot, Text: "Sure.", Blocks: artifact.Render(reply)},
	}
	got := newTestFormatter(nil).Format(context.Background(), thread, directive.Directives{})

	require.Len(t, got, 2)
	text := got[1].Parts[0].Text
	assert.Contains(t, text, "Sure.")
	_, arts := artifact.Parse(text)
	require.Len(t, arts, 1)
	assert.Equal(t, "package main", arts[0].Content)
	assert.Equal(t, "go", arts[0].Language)
}

func TestFormat_UserBlocksAreIgnored(t *testing.T) {
	thread := []domain.Message{
		{TS: "1", User: "A", Text: "plain", Blocks: []domain.Block{domain.SectionBlock("rich")}},
	}
	got := newTestFormatter(nil).Format(context.Background(), thread, directive.Directives{})
	assert.Equal(t, []domain.Turn{user("plain")}, got)
}

func TestFormat_OverflowSentinelReplacedByUploadedFile(t *testing.T) {
	gw := fakeGateway{parts: map[string]domain.ContentPart{"F1": domain.TextPart("the full answer")}}
	thread := []domain.Message{
		{TS: "1", User: "A", Text: "long please"},
		{TS: "2", User: bot, Text: artifact.OverflowSentinel, Files: []domain.FileRef{{ID: "F1", Name: "llm_response.txt"}}},
	}
	got := newTestFormatter(gw).Format(context.Background(), thread, directive.Directives{})

	want := []domain.Turn{user("long please"), assistant("the full answer")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_AttachmentFailureOmitsOnlyThatFile(t *testing.T) {
	img := domain.ContentPart{Kind: domain.PartImage, Data: []byte{1, 2}, MediaType: "image/png"}
	gw := fakeGateway{parts: map[string]domain.ContentPart{"ok": img}}
	thread := []domain.Message{
		{TS: "1", User: "A", Text: "look", Files: []domain.FileRef{{ID: "ok"}, {ID: "broken"}}},
		{TS: "2", User: "A", Files: []domain.FileRef{{ID: "broken"}}},
	}
	got := newTestFormatter(gw).Format(context.Background(), thread, directive.Directives{})

	want := []domain.Turn{{Role: domain.RoleUser, Parts: []domain.ContentPart{domain.TextPart("look"), img}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_KeepsConsecutiveSameRoleTurns(t *testing.T) {
	thread := []domain.Message{
		{TS: "1", User: "A", Text: "one"},
		{TS: "2", User: "A", Text: "two"},
	}
	got := newTestFormatter(nil).Format(context.Background(), thread, directive.Directives{})
	assert.Equal(t, []domain.Turn{user("one"), user("two")}, got)
}

func TestFormat_EmptyThread(t *testing.T) {
	assert.Nil(t, newTestFormatter(nil).Format(context.Background(), nil, directive.Directives{}))
}
