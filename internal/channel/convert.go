package channel

import (
	"strings"

	"github.com/slack-go/slack"

	"threadbot/internal/artifact"
	"threadbot/internal/domain"
)

// UploadComment is posted alongside an overflow upload.
const UploadComment = artifact.OverflowSentinel

func toMessage(m slack.Msg) domain.Message {
	out := domain.Message{
		TS:       m.Timestamp,
		ThreadTS: m.ThreadTimestamp,
		User:     m.User,
		Text:     m.Text,
		SubType:  m.SubType,
		Blocks:   fromSlackBlocks(m.Blocks),
	}
	for _, f := range m.Files {
		out.Files = append(out.Files, fileRef(f))
	}
	return out
}

// fileRef lists download URLs best first: the 1024px thumbnail for images,
// then the private URLs.
func fileRef(f slack.File) domain.FileRef {
	ref := domain.FileRef{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.Mimetype,
		PrettyType: f.PrettyType,
		Size:       f.Size,
	}
	var candidates []string
	if strings.HasPrefix(f.Mimetype, "image/") {
		candidates = append(candidates, f.Thumb1024)
	}
	candidates = append(candidates, f.URLPrivate, f.URLPrivateDownload)

	seen := make(map[string]bool, len(candidates))
	for _, u := range candidates {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		ref.URLs = append(ref.URLs, u)
	}
	return ref
}

func toSlackBlocks(blocks []domain.Block) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case domain.BlockDivider:
			out = append(out, slack.NewDividerBlock())
		case domain.BlockSection:
			if b.Text == "" {
				continue
			}
			out = append(out, slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, b.Text, false, false), nil, nil))
		}
	}
	return out
}

// fromSlackBlocks keeps section and divider blocks; anything else is not
// produced by the bot and is skipped.
func fromSlackBlocks(blocks slack.Blocks) []domain.Block {
	var out []domain.Block
	for _, b := range blocks.BlockSet {
		switch v := b.(type) {
		case *slack.DividerBlock:
			out = append(out, domain.DividerBlock())
		case *slack.SectionBlock:
			if v.Text == nil {
				continue
			}
			out = append(out, domain.SectionBlock(v.Text.Text))
		}
	}
	return out
}
