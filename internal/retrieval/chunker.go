package retrieval

import (
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/utils"
)

// Chunk is a piece of a source document.
type Chunk struct {
	Source string `json:"source"`
	Seq    int    `json:"seq"`
	Text   string `json:"text"`
}

// Split breaks text into chunks of up to maxTokens, carrying trailing
// paragraphs worth up to overlap tokens into the next chunk. Paragraphs
// longer than maxTokens are cut on word boundaries first.
func Split(source, text string, maxTokens, overlap int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	var paras []string
	for _, p := range splitParagraphs(text) {
		paras = append(paras, splitLong(p, maxTokens)...)
	}

	var chunks []Chunk
	var window []string
	cur := 0
	flush := func() {
		chunks = append(chunks, Chunk{Source: source, Seq: len(chunks), Text: strings.Join(window, "\n\n")})
	}
	for _, p := range paras {
		t := utils.CountTokens(p)
		if cur+t > maxTokens && len(window) > 0 {
			flush()
			if overlap > 0 {
				window, cur = backfillOverlap(window, overlap)
			} else {
				window, cur = window[:0], 0
			}
		}
		window = append(window, p)
		cur += t
	}
	if len(window) > 0 {
		flush()
	}
	return chunks
}

func splitParagraphs(s string) []string {
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func splitLong(p string, maxTokens int) []string {
	if utils.CountTokens(p) <= maxTokens {
		return []string{p}
	}
	var out []string
	var b strings.Builder
	for _, w := range strings.Fields(p) {
		if b.Len() > 0 && utils.CountTokens(b.String()+" "+w) > maxTokens {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// backfillOverlap keeps the trailing paragraphs that fit in overlap tokens.
// The last paragraph is always kept.
func backfillOverlap(paras []string, overlap int) ([]string, int) {
	var out []string
	tokens := 0
	for i := len(paras) - 1; i >= 0; i-- {
		t := utils.CountTokens(paras[i])
		if tokens+t > overlap && len(out) > 0 {
			break
		}
		out = append([]string{paras[i]}, out...)
		tokens += t
	}
	return out, tokens
}
