package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DeterministicProvider derives a vector from an FNV hash of the text.
// Equal texts get equal vectors, which is all local runs and tests need.
type DeterministicProvider struct {
	dims int
}

// NewDeterministicProvider creates a provider producing dims-sized vectors.
func NewDeterministicProvider(dims int) *DeterministicProvider {
	if dims <= 0 {
		dims = Dimension
	}
	return &DeterministicProvider{dims: dims}
}

// Name returns "deterministic".
func (p *DeterministicProvider) Name() string {
	return "deterministic"
}

// Embed never fails unless ctx is already done.
func (p *DeterministicProvider) Embed(ctx context.Context, _ string, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dims)
	for i := range vec {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return vec, nil
}
