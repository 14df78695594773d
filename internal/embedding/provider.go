// Package embedding turns text into unit-length vectors for the vector index.
//
// Providers talk to whatever model serves embeddings. Guard wraps a provider with
// the engine's policy: every call is time-bounded, results are checked for
// dimension and normalized, and every failure is reported as ErrProviderUnavailable.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

// Dimension is the vector size every index in the engine uses.
const Dimension = 768

// DefaultTimeout bounds a single embedding call.
const DefaultTimeout = 10 * time.Second

// Provider produces a raw embedding for text. id is the caller's correlation
// token for the request; providers that have no use for it ignore it.
type Provider interface {
	Embed(ctx context.Context, id, text string) ([]float32, error)
	Name() string
}

// Normalize returns a copy of vec scaled to unit length.
// A zero or non-finite vector cannot be normalized.
func Normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, errors.New("vector has no usable magnitude")
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

// Guard applies timeout, validation and normalization around a Provider.
type Guard struct {
	inner   Provider
	timeout time.Duration
	dims    int
	log     logger.Logger
	metrics *metrics.EngineMetrics
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithDimension overrides the expected vector size.
func WithDimension(n int) GuardOption {
	return func(g *Guard) {
		if n > 0 {
			g.dims = n
		}
	}
}

// WithLogger sets the logger for degraded calls.
func WithLogger(l logger.Logger) GuardOption {
	return func(g *Guard) { g.log = l }
}

// WithMetrics records latency and failures.
func WithMetrics(m *metrics.EngineMetrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard wraps p.
func NewGuard(p Provider, opts ...GuardOption) *Guard {
	g := &Guard{
		inner:   p,
		timeout: DefaultTimeout,
		dims:    Dimension,
		log:     logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name reports the wrapped provider's name.
func (g *Guard) Name() string {
	return g.inner.Name()
}

// Dimension reports the expected vector size.
func (g *Guard) Dimension() int {
	return g.dims
}

// Embed returns a unit vector of the configured dimension, or an error that
// matches memerrors.ErrProviderUnavailable.
func (g *Guard) Embed(ctx context.Context, id, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	vec, err := g.embed(ctx, id, text)
	took := time.Since(start)

	if err != nil {
		g.metrics.ObserveEmbedding(g.inner.Name(), took, string(memerrors.KindProviderUnavailable))
		g.log.Warn("Embedding unavailable",
			logger.StringField("provider", g.inner.Name()),
			logger.StringField("request_id", id),
			logger.DurationField("duration", took),
			logger.ErrorField(err))
		return nil, memerrors.E(memerrors.KindProviderUnavailable, "embed", err)
	}
	g.metrics.ObserveEmbedding(g.inner.Name(), took, "")
	return vec, nil
}

func (g *Guard) embed(ctx context.Context, id, text string) ([]float32, error) {
	raw, err := g.inner.Embed(ctx, id, text)
	if err != nil {
		return nil, err
	}
	if len(raw) < g.dims {
		return nil, fmt.Errorf("provider returned %d dimensions, want %d", len(raw), g.dims)
	}
	// Matryoshka-style models return more dimensions than the index holds.
	return Normalize(raw[:g.dims])
}
