package conversation

import (
	"encoding/json"

	"threadbot/internal/domain"
)

// ApplyCacheBoundaries returns the system prompt as a cacheable part and a
// copy of turns in which the last part of the most recent multi-part user
// turn carries a cache boundary. turns is not modified.
func ApplyCacheBoundaries(system string, turns []domain.Turn) ([]domain.ContentPart, []domain.Turn) {
	var sys []domain.ContentPart
	if system != "" {
		sys = []domain.ContentPart{{Kind: domain.PartText, Text: system, CacheBoundary: true}}
	}

	out := make([]domain.Turn, len(turns))
	for i, t := range turns {
		out[i] = domain.Turn{Role: t.Role, Parts: append([]domain.ContentPart(nil), t.Parts...)}
	}

	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == domain.RoleUser && len(out[i].Parts) > 1 {
			out[i].Parts[len(out[i].Parts)-1].CacheBoundary = true
			break
		}
	}
	return sys, out
}

const dumpTextLimit = 200

type dumpPart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	Cache     bool   `json:"cache,omitempty"`
}

type dumpTurn struct {
	Role    domain.Role `json:"role"`
	Content []dumpPart  `json:"content"`
}

// Dump renders turns for debug logs with binary data elided and text
// shortened.
func Dump(turns []domain.Turn) string {
	out := make([]dumpTurn, len(turns))
	for i, t := range turns {
		dt := dumpTurn{Role: t.Role, Content: make([]dumpPart, len(t.Parts))}
		for j, p := range t.Parts {
			dp := dumpPart{Type: string(p.Kind), MediaType: p.MediaType, Cache: p.CacheBoundary}
			if p.Kind == domain.PartText {
				dp.Text = shorten(p.Text, dumpTextLimit)
			} else {
				dp.Bytes = len(p.Data)
			}
			dt.Content[j] = dp
		}
		out[i] = dt
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(b)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
