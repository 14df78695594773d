package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyCheck fails while failing is set.
type flakyCheck struct {
	name    string
	failing atomic.Bool
	delay   time.Duration
}

func (f *flakyCheck) Name() string { return f.name }

func (f *flakyCheck) Check(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failing.Load() {
		return errors.New(f.name + " down")
	}
	return nil
}

type indexReport struct{ vectors int }

func (indexReport) Name() string                    { return "engine" }
func (indexReport) Check(ctx context.Context) error { return errors.New("Check must not be called") }

func (r indexReport) Report(ctx context.Context) (map[string]any, error) {
	return map[string]any{"conversation_vectors": r.vectors}, nil
}

func TestNew_Defaults(t *testing.T) {
	h := New(WithTimeout(0), WithFailureThreshold(0), WithLogger(nil))
	assert.Equal(t, DefaultTimeout, h.timeout)
	assert.Equal(t, DefaultFailureThreshold, h.threshold)
	assert.NotNil(t, h.log)

	h = New(WithTimeout(time.Second), WithFailureThreshold(1))
	assert.Equal(t, time.Second, h.timeout)
	assert.Equal(t, 1, h.threshold)
}

func TestCheckReadiness(t *testing.T) {
	ctx := context.Background()

	t.Run("no checks is ready", func(t *testing.T) {
		s, err := New().CheckReadiness(ctx)
		require.NoError(t, err)
		assert.True(t, s.Healthy)
		assert.Empty(t, s.Results)
	})

	t.Run("results are sorted by name", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck(NewCheckFunc("storage", func(context.Context) error { return nil }))
		h.AddReadinessCheck(NewCheckFunc("embedding", func(context.Context) error { return nil }))
		s, err := h.CheckReadiness(ctx)
		require.NoError(t, err)
		require.Len(t, s.Results, 2)
		assert.Equal(t, "embedding", s.Results[0].Name)
		assert.Equal(t, "storage", s.Results[1].Name)
	})

	t.Run("liveness and readiness are separate", func(t *testing.T) {
		h := New(WithFailureThreshold(1))
		h.AddReadinessCheck(NewCheckFunc("embedding", func(context.Context) error { return errors.New("refused") }))
		live, err := h.CheckLiveness(ctx)
		require.NoError(t, err)
		assert.True(t, live.Healthy)

		ready, err := h.CheckReadiness(ctx)
		assert.EqualError(t, err, "unhealthy: [embedding]")
		assert.False(t, ready.Healthy)
		assert.Equal(t, "refused", ready.Results[0].Error)
	})

	t.Run("reporter details are attached", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck(indexReport{vectors: 12})
		s, err := h.CheckReadiness(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"conversation_vectors": 12}, s.Results[0].Details)
	})
}

func TestFailureThreshold(t *testing.T) {
	ctx := context.Background()
	embedding := &flakyCheck{name: "embedding"}
	embedding.failing.Store(true)
	h := New(WithFailureThreshold(2))
	h.AddReadinessCheck(embedding)

	s, err := h.CheckReadiness(ctx)
	require.NoError(t, err, "one failure stays under the threshold")
	assert.True(t, s.Healthy)
	assert.Equal(t, 1, s.Results[0].Failures)
	assert.Empty(t, s.Results[0].Error)

	s, err = h.CheckReadiness(ctx)
	assert.Error(t, err)
	assert.False(t, s.Healthy)
	assert.Equal(t, 2, s.Results[0].Failures)
	assert.Equal(t, "embedding down", s.Results[0].Error)

	embedding.failing.Store(false)
	s, err = h.CheckReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Results[0].Failures)

	embedding.failing.Store(true)
	s, err = h.CheckReadiness(ctx)
	require.NoError(t, err, "recovery restarts the streak")
	assert.Equal(t, 1, s.Results[0].Failures)
}

func TestTimeoutAndConcurrency(t *testing.T) {
	ctx := context.Background()
	h := New(WithTimeout(20*time.Millisecond), WithFailureThreshold(1))
	h.AddLivenessCheck(&flakyCheck{name: "slow", delay: time.Second})
	h.AddLivenessCheck(&flakyCheck{name: "records", delay: time.Millisecond})
	h.AddLivenessCheck(&flakyCheck{name: "transcripts", delay: time.Millisecond})

	start := time.Now()
	s, err := h.CheckLiveness(ctx)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Error(t, err)
	require.Len(t, s.Results, 3)
	assert.True(t, s.Results[0].Healthy, s.Results[0].Name)
	assert.Equal(t, "slow", s.Results[1].Name)
	assert.Contains(t, s.Results[1].Error, context.DeadlineExceeded.Error())
	assert.True(t, s.Results[2].Healthy)
}
