package embeddings

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const DefaultHashDim = 384

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// HashEmbedder maps text onto a fixed-size vector by hashing lowercased
// tokens into signed buckets. The output is L2-normalized, so texts that
// share words land close together under every supported metric.
type HashEmbedder struct {
	dim int
}

var _ Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDim
	}
	return &HashEmbedder{
		dim: dim,
	}
}

func (e *HashEmbedder) Model() Model {
	return Hash
}

func (e *HashEmbedder) Dim() int {
	return e.dim
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dim)
	for _, tok := range tokenize(text) {
		h := xxhash.Sum64String(tok)
		idx := int(h % uint64(e.dim))
		if h>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func tokenize(text string) []string {
	toks := tokenRe.FindAllString(text, -1)
	for i, t := range toks {
		toks[i] = strings.ToLower(t)
	}
	return toks
}
