package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDimension = 256

// HashEmbedder is an offline embedder based on feature hashing of lowercase
// word unigrams and bigrams. Same text always gives the same unit vector.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		h.add(vec, w)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// keep the vector valid for cosine similarity
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (h *HashEmbedder) add(vec []float32, feature string) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}
