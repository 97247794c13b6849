package provider

import (
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"threadbot/internal/domain"
)

// MetadataUserID is the request metadata key forwarded as the API's user_id.
const MetadataUserID = "user_id"

// convertSystem maps text parts to system blocks, keeping cache boundaries.
func convertSystem(parts []domain.ContentPart) []anthropic.TextBlockParam {
	var out []anthropic.TextBlockParam
	for _, p := range parts {
		if p.Kind != domain.PartText || p.Text == "" {
			continue
		}
		b := anthropic.TextBlockParam{Text: p.Text}
		if p.CacheBoundary {
			b.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		out = append(out, b)
	}
	return out
}

// convertTurns maps turns to API messages one to one. Turns are not merged.
func convertTurns(turns []domain.Turn, logger *slog.Logger) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for i, t := range turns {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Parts))
		for _, p := range t.Parts {
			b, ok := convertPart(p)
			if !ok {
				if logger != nil {
					logger.Warn("dropping unsupported content part", "turn", i, "kind", p.Kind)
				}
				continue
			}
			blocks = append(blocks, b)
		}
		if len(blocks) == 0 {
			continue
		}
		if t.Role == domain.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func convertPart(p domain.ContentPart) (anthropic.ContentBlockParamUnion, bool) {
	var b anthropic.ContentBlockParamUnion
	switch p.Kind {
	case domain.PartText:
		if p.Text == "" {
			return b, false
		}
		b = anthropic.NewTextBlock(p.Text)
	case domain.PartImage:
		if len(p.Data) == 0 {
			return b, false
		}
		b = anthropic.NewImageBlockBase64(imageMediaType(p.MediaType), base64.StdEncoding.EncodeToString(p.Data))
	case domain.PartDocument:
		if len(p.Data) == 0 {
			return b, false
		}
		b = anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(p.Data),
		})
	default:
		return b, false
	}
	if p.CacheBoundary {
		if cc := b.GetCacheControl(); cc != nil {
			*cc = anthropic.NewCacheControlEphemeralParam()
		}
	}
	return b, true
}

// imageMediaType normalizes to the formats the API accepts.
func imageMediaType(mt string) string {
	mt = strings.ToLower(mt)
	switch mt {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return mt
	case "image/jpg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// convertResponse concatenates the text blocks of a reply.
func convertResponse(msg *anthropic.Message) *domain.ModelResponse {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &domain.ModelResponse{
		Text:       sb.String(),
		StopReason: string(msg.StopReason),
		Usage: domain.Usage{
			InputTokens:         int(msg.Usage.InputTokens),
			OutputTokens:        int(msg.Usage.OutputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}
}
