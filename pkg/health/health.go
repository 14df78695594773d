// Package health runs the liveness and readiness checks behind the engine's
// health endpoints. A failing check only counts against readiness after
// FailureThreshold consecutive failures, so one slow embedding call does not
// pull the instance out of rotation.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lewisedginton/memory_engine/pkg/logger"
)

const (
	DefaultTimeout          = 5 * time.Second
	DefaultFailureThreshold = 3
)

// Check is one named health condition.
type Check interface {
	Name() string
	// Check returns nil when healthy
	Check(ctx context.Context) error
}

// Reporter is a Check that also describes what it saw, such as index sizes.
// When a check implements Reporter, Report is called instead of Check.
type Reporter interface {
	Check
	Report(ctx context.Context) (map[string]any, error)
}

type funcCheck struct {
	name string
	fn   func(context.Context) error
}

func (c funcCheck) Name() string                    { return c.name }
func (c funcCheck) Check(ctx context.Context) error { return c.fn(ctx) }

// NewCheckFunc adapts fn to a Check.
func NewCheckFunc(name string, fn func(context.Context) error) Check {
	return funcCheck{name: name, fn: fn}
}

// Result is the outcome of one check run.
type Result struct {
	Name    string
	Healthy bool
	Error   string
	// Failures is the current run of consecutive failures
	Failures int
	Latency  time.Duration
	Details  map[string]any
}

// Status aggregates a set of check results; Results are sorted by name.
type Status struct {
	Healthy bool
	Results []Result
}

type kind int

const (
	liveness kind = iota
	readiness
)

// HealthChecker holds the registered checks and their failure streaks.
type HealthChecker struct {
	timeout   time.Duration
	threshold int
	log       logger.Logger

	mu       sync.Mutex
	checks   map[kind][]Check
	failures map[string]int
}

// Option configures a HealthChecker.
type Option func(*HealthChecker)

// WithTimeout bounds each check run.
func WithTimeout(d time.Duration) Option {
	return func(h *HealthChecker) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger sets the logger used to report failing checks.
func WithLogger(l logger.Logger) Option {
	return func(h *HealthChecker) {
		if l != nil {
			h.log = l
		}
	}
}

// WithFailureThreshold sets how many consecutive failures make a check
// unhealthy. Values below 1 are ignored.
func WithFailureThreshold(n int) Option {
	return func(h *HealthChecker) {
		if n > 0 {
			h.threshold = n
		}
	}
}

// New creates a HealthChecker with no checks.
func New(opts ...Option) *HealthChecker {
	h := &HealthChecker{
		timeout:   DefaultTimeout,
		threshold: DefaultFailureThreshold,
		log:       logger.NewNopLogger(),
		checks:    map[kind][]Check{},
		failures:  map[string]int{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddLivenessCheck registers a check whose failure means the process should
// be restarted.
func (h *HealthChecker) AddLivenessCheck(c Check) { h.add(liveness, c) }

// AddReadinessCheck registers a check whose failure means the engine should
// not receive turns, e.g. storage or the embedding service is down.
func (h *HealthChecker) AddReadinessCheck(c Check) { h.add(readiness, c) }

func (h *HealthChecker) add(k kind, c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[k] = append(h.checks[k], c)
}

// CheckLiveness runs the liveness checks.
func (h *HealthChecker) CheckLiveness(ctx context.Context) (*Status, error) {
	return h.run(ctx, liveness)
}

// CheckReadiness runs the readiness checks.
func (h *HealthChecker) CheckReadiness(ctx context.Context) (*Status, error) {
	return h.run(ctx, readiness)
}

// run executes every check of kind k concurrently. The returned error names
// the unhealthy checks; the Status is always set.
func (h *HealthChecker) run(ctx context.Context, k kind) (*Status, error) {
	h.mu.Lock()
	checks := append([]Check(nil), h.checks[k]...)
	h.mu.Unlock()

	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = h.runOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	status := &Status{Healthy: true, Results: results}
	var failed []string
	for _, r := range results {
		if !r.Healthy {
			status.Healthy = false
			failed = append(failed, r.Name)
		}
	}
	if !status.Healthy {
		return status, fmt.Errorf("unhealthy: %v", failed)
	}
	return status, nil
}

func (h *HealthChecker) runOne(parent context.Context, c Check) Result {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	start := time.Now()
	var details map[string]any
	var err error
	if r, ok := c.(Reporter); ok {
		details, err = r.Report(ctx)
	} else {
		err = c.Check(ctx)
	}
	res := Result{Name: c.Name(), Healthy: true, Latency: time.Since(start), Details: details}

	h.mu.Lock()
	if err == nil {
		h.failures[res.Name] = 0
	} else {
		h.failures[res.Name]++
	}
	res.Failures = h.failures[res.Name]
	h.mu.Unlock()

	if err == nil {
		return res
	}
	fields := []logger.LogField{
		logger.StringField("check", res.Name),
		logger.ErrorField(err),
		logger.IntField("failures", res.Failures),
	}
	if res.Failures < h.threshold {
		h.log.Debug("Health check failed below threshold", fields...)
		return res
	}
	res.Healthy = false
	res.Error = err.Error()
	h.log.Warn("Health check failed", append(fields, logger.DurationField("latency", res.Latency))...)
	return res
}
