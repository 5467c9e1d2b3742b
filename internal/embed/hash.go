package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/Hkesd/mcp-memory-service/internal/memory"
)

// Hash is a deterministic, dependency-free embedder. Each lowercase token
// is hashed into a signed bucket, so texts sharing words land close to each
// other. Texts without word characters fall back to a vector seeded from the
// whole input.
type Hash struct {
	dimensions int
}

var _ memory.Embedder = (*Hash)(nil)

// NewHash creates a hashing embedder producing vectors of the given size.
func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Hash{dimensions: dimensions}
}

// Dimensions implements memory.Embedder.
func (h *Hash) Dimensions() int { return h.dimensions }

// Embed implements memory.Embedder.
func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap(ProviderHash, err)
	}

	vec := make([]float32, h.dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		sum := fnv64(tok)
		idx := int(sum % uint64(h.dimensions))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	if len(tokens) == 0 {
		seed := fnv64(text)
		for i := range vec {
			// LCG step.
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
		}
	}
	return normalize(vec), nil
}

func fnv64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// normalize converts vec to a unit vector in place.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
