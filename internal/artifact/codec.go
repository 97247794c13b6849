// Package artifact converts between model output carrying <antArtifact> tags
// and the display blocks posted to Slack.
package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"threadbot/internal/domain"
)

// Artifact type strings as they appear in the tag's type attribute.
const (
	TypeCode     = "application/vnd.ant.code"
	TypeMarkdown = "text/markdown"
	TypeHTML     = "text/html"
	TypeReact    = "application/vnd.ant.react"
	TypeSVG      = "image/svg+xml"
	TypeMermaid  = "application/vnd.ant.mermaid"
)

// OverflowSentinel is the visible text of a reply whose full body was
// uploaded as a file.
const OverflowSentinel = "Response was too long for Slack. See attached llm_response.txt"

// Artifact is one self-contained piece of structured output.
type Artifact struct {
	Identifier string
	Type       string
	Language   string
	Title      string
	Content    string
}

// Fence returns the code fence label the artifact renders with, and false
// when it renders as plain mrkdwn.
func (a Artifact) Fence() (string, bool) {
	switch a.Type {
	case TypeMarkdown:
		return "", false
	case TypeHTML, TypeReact:
		return "html", true
	case TypeSVG:
		return "xml", true
	case TypeMermaid:
		return "mermaid", true
	default:
		return a.Language, true
	}
}

var tagPattern = regexp.MustCompile(
	`(?s)<antArtifact\s+identifier="([^"]+)"\s+type="([^"]+)"\s+(?:language="([^"]+)")?\s*title="([^"]+)">\s*(.*?)\s*</antArtifact>`)

var fencePattern = regexp.MustCompile("(?s)^```([\\w+#.-]*)\n(.*?)\n```")

// Parse extracts every artifact tag from text. It returns the remaining prose,
// trimmed, and the artifacts in source order. An artifact body ends at the
// first closing tag.
func Parse(text string) (string, []Artifact) {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), nil
	}

	artifacts := make([]Artifact, 0, len(matches))
	var rest strings.Builder
	last := 0
	for _, m := range matches {
		rest.WriteString(text[last:m[0]])
		last = m[1]
		a := Artifact{
			Identifier: text[m[2]:m[3]],
			Type:       text[m[4]:m[5]],
			Title:      text[m[8]:m[9]],
			Content:    strings.TrimSpace(text[m[10]:m[11]]),
		}
		if m[6] >= 0 {
			a.Language = text[m[6]:m[7]]
		}
		artifacts = append(artifacts, a)
	}
	rest.WriteString(text[last:])
	return strings.TrimSpace(rest.String()), artifacts
}

// ToBlocks renders prose followed by each artifact as divider, title and body.
func ToBlocks(text string, artifacts []Artifact) []domain.Block {
	blocks := make([]domain.Block, 0, 1+3*len(artifacts))
	if text != "" {
		blocks = append(blocks, domain.SectionBlock(text))
	}
	for _, a := range artifacts {
		blocks = append(blocks,
			domain.DividerBlock(),
			domain.SectionBlock("*"+a.Title+"*"),
		)
		if label, fenced := a.Fence(); fenced {
			blocks = append(blocks, domain.SectionBlock("```"+label+"\n"+a.Content+"\n```"))
		} else {
			blocks = append(blocks, domain.SectionBlock(a.Content))
		}
	}
	return blocks
}

// Render parses text and returns its blocks.
func Render(text string) []domain.Block {
	return ToBlocks(Parse(text))
}

// FromBlocks rebuilds model-style text from posted blocks. A divider marks the
// next fenced section as an artifact, which is written back as a synthetic
// tag. Titles are not recovered. An unlabeled fence gets no language
// attribute so the tag still parses. Sections holding the overflow sentinel
// are dropped.
func FromBlocks(blocks []domain.Block) string {
	var lines []string
	pending := ""

	for _, b := range blocks {
		switch b.Type {
		case domain.BlockDivider:
			pending = fmt.Sprintf("block-%d", len(lines))
		case domain.BlockSection:
			if strings.HasPrefix(b.Text, OverflowSentinel) {
				continue
			}
			m := fencePattern.FindStringSubmatch(b.Text)
			if m == nil || pending == "" {
				lines = append(lines, b.Text)
				continue
			}
			label, body := m[1], m[2]
			lang := ""
			if label != "" {
				lang = fmt.Sprintf(` language="%s"`, label)
			}
			lines = append(lines, fmt.Sprintf(
				`<antArtifact identifier="%s" type="%s"%s title="Code Block">%s</antArtifact>`,
				pending, typeForLabel(label), lang, body))
			pending = ""
		}
	}
	return strings.Join(lines, "\n")
}

func typeForLabel(label string) string {
	switch label {
	case "html":
		return TypeHTML
	case "xml":
		return TypeSVG
	case "mermaid":
		return TypeMermaid
	default:
		return TypeCode
	}
}
