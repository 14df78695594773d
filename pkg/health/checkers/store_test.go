package checkers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct{ err error }

func (f fakeStore) Verify(context.Context) error { return f.err }
func (f fakeStore) Ping(context.Context) error  { return f.err }

func TestStoreChecker(t *testing.T) {
	ctx := context.Background()

	ok := NewVerifyChecker(fakeStore{}, "storage")
	assert.Equal(t, "storage", ok.Name())
	assert.NoError(t, ok.Check(ctx))

	down := NewPingChecker(fakeStore{err: errors.New("connection refused")}, "database")
	err := down.Check(ctx)
	assert.EqualError(t, err, "database unavailable: connection refused")
}
