package checkers

import (
	"context"
	"fmt"
)

// Verifier is anything that can round-trip a small write, such as a storage backend.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Pinger is anything with a cheap liveness call, such as a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports a storage backend or database healthy when its check succeeds.
type StoreChecker struct {
	name  string
	check func(context.Context) error
}

// NewVerifyChecker wraps p.Verify.
func NewVerifyChecker(p Verifier, name string) *StoreChecker {
	return &StoreChecker{name: name, check: p.Verify}
}

// NewPingChecker wraps p.Ping.
func NewPingChecker(p Pinger, name string) *StoreChecker {
	return &StoreChecker{name: name, check: p.Ping}
}

// Name returns the name of this health check.
func (s *StoreChecker) Name() string {
	return s.name
}

// Check runs the wrapped call.
func (s *StoreChecker) Check(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return fmt.Errorf("%s unavailable: %w", s.name, err)
	}
	return nil
}
