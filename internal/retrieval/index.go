// Package retrieval ranks passages of attached documents and scraped pages
// against a question so only the relevant text reaches the prompt.
package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/utils"
)

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HashEmbedder is a local bag-of-words embedder using feature hashing.
// Vectors are L2 normalized.
type HashEmbedder struct {
	Dim int
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "in": true, "a": true, "an": true,
	"is": true, "are": true, "was": true, "were": true, "for": true, "on": true, "with": true,
	"as": true, "by": true, "it": true, "that": true, "this": true, "what": true, "which": true,
	"how": true, "many": true, "from": true, "at": true, "or": true, "be": true,
}

func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = 512
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		for _, w := range wordRe.FindAllString(strings.ToLower(t), -1) {
			if len(w) < 2 || stopwords[w] {
				continue
			}
			hs := fnv.New32a()
			_, _ = hs.Write([]byte(w))
			v[hs.Sum32()%uint32(dim)]++
		}
		normalize(v)
		out[i] = v
	}
	return out, nil
}

func normalize(v []float32) {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	if n == 0 {
		return
	}
	n = math.Sqrt(n)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}

// CosineSim between two vectors. Returns 0 if dimensions mismatch.
func CosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type Record struct {
	Chunk
	Vector []float32 `json:"-"`
}

// Scored is a search hit.
type Scored struct {
	Record
	Score float64
}

type Options struct {
	ChunkMaxTokens  int
	ChunkOverlap    int
	MaxChunksPerDoc int
}

// Index holds embedded chunks for one request.
type Index struct {
	emb     Embedder
	opts    Options
	Records []Record
}

// NewIndex returns an empty index. A nil embedder means HashEmbedder.
func NewIndex(emb Embedder, opts Options) *Index {
	if emb == nil {
		emb = HashEmbedder{}
	}
	if opts.ChunkMaxTokens <= 0 {
		opts.ChunkMaxTokens = 300
	}
	return &Index{emb: emb, opts: opts}
}

// Len is the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.Records) }

// Add chunks text and embeds the chunks under source.
func (idx *Index) Add(ctx context.Context, source, text string) error {
	chunks := Split(source, text, idx.opts.ChunkMaxTokens, idx.opts.ChunkOverlap)
	if idx.opts.MaxChunksPerDoc > 0 && len(chunks) > idx.opts.MaxChunksPerDoc {
		chunks = chunks[:idx.opts.MaxChunksPerDoc]
	}
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := idx.emb.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", source, err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embed %s: got %d vectors for %d chunks", source, len(vecs), len(chunks))
	}
	for i, c := range chunks {
		idx.Records = append(idx.Records, Record{Chunk: c, Vector: vecs[i]})
	}
	return nil
}

// Search returns up to topK records scoring at least minScore, best first.
func (idx *Index) Search(ctx context.Context, query string, topK int, minScore float64) ([]Scored, error) {
	if len(idx.Records) == 0 {
		return nil, nil
	}
	qv, err := idx.emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits := make([]Scored, 0, len(idx.Records))
	for _, r := range idx.Records {
		if s := CosineSim(qv[0], r.Vector); s >= minScore {
			hits = append(hits, Scored{Record: r, Score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Context renders the best-matching chunks for query within budget tokens,
// restoring source order so passages read naturally.
func (idx *Index) Context(ctx context.Context, query string, budget int) (string, error) {
	hits, err := idx.Search(ctx, query, 0, 0.05)
	if err != nil || len(hits) == 0 {
		return "", err
	}
	var picked []Scored
	used := 0
	for _, h := range hits {
		t := utils.CountTokens(h.Text)
		if budget > 0 && used+t > budget {
			continue
		}
		picked = append(picked, h)
		used += t
	}
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].Source == picked[j].Source {
			return picked[i].Seq < picked[j].Seq
		}
		return picked[i].Source < picked[j].Source
	})
	var b strings.Builder
	for _, p := range picked {
		fmt.Fprintf(&b, "--- %s (part %d) ---\n%s\n\n", p.Source, p.Seq+1, p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
