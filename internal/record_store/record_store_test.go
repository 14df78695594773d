package record_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
)

func newTestStore(t *testing.T, now func() time.Time, rnd func() int) (*Store, storage_manager.FileProvider) {
	t.Helper()
	files := storage_manager.NewLocalFileProvider(t.TempDir())
	s, err := New(Config{FileProvider: files, Now: now, Rand: rnd})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, files
}

func TestForwardLink(t *testing.T) {
	var l ForwardLink
	_, ok := l.Get()
	assert.False(t, ok)

	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	require.NoError(t, l.Set(7))
	assert.ErrorIs(t, l.Set(8), ErrLinkAlreadySet)
	id, ok := l.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	data, err = json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, "7", string(data))

	var back ForwardLink
	require.NoError(t, json.Unmarshal([]byte("123456789012345678"), &back))
	assert.True(t, back.IsSet())
}

func TestDecodeRecord(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		corrupt bool
		check   func(t *testing.T, r *MemoryRecord)
	}{
		{
			name: "current format",
			body: `{"id": 5, "speaker": "Maggie", "message": "hi", "time": "2024-03-01T10:00:00Z", "prior_message_id": 4, "resulting_message_id": null}`,
			check: func(t *testing.T, r *MemoryRecord) {
				assert.Equal(t, "Maggie", r.Speaker)
				require.NotNil(t, r.PriorMessageID)
				assert.Equal(t, int64(4), *r.PriorMessageID)
				assert.False(t, r.ResultingMessageID.IsSet())
			},
		},
		{
			name: "naive timestamp and legacy reply pointer",
			body: `{"id": 5, "speaker": "Maggie", "message": "hi", "time": "2023-09-20T21:45:23.178935", "my_response": 6}`,
			check: func(t *testing.T, r *MemoryRecord) {
				assert.Equal(t, time.Date(2023, 9, 20, 21, 45, 23, 178935000, time.UTC), r.Time)
				next, ok := r.ResultingMessageID.Get()
				assert.True(t, ok)
				assert.Equal(t, int64(6), next)
			},
		},
		{name: "not json", body: `{"id": 5,`, corrupt: true},
		{name: "missing speaker", body: `{"id": 5, "message": "hi", "time": "2024-03-01T10:00:00Z"}`, corrupt: true},
		{name: "missing message", body: `{"id": 5, "speaker": "a", "time": "2024-03-01T10:00:00Z"}`, corrupt: true},
		{name: "bad time", body: `{"id": 5, "speaker": "a", "message": "", "time": "yesterday"}`, corrupt: true},
		{name: "id mismatch", body: `{"id": 6, "speaker": "a", "message": "", "time": "2024-03-01T10:00:00Z"}`, corrupt: true},
		{name: "link not a number", body: `{"id": 5, "speaker": "a", "message": "", "time": "2024-03-01T10:00:00Z", "resulting_message_id": "x"}`, corrupt: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := decodeRecord([]byte(tc.body), 5)
			if tc.corrupt {
				assert.ErrorIs(t, err, memerrors.ErrCorruptRecord)
				return
			}
			require.NoError(t, err)
			tc.check(t, rec)
		})
	}
}

func TestStore_GetDistinguishesMissingFromCorrupt(t *testing.T) {
	ctx := context.Background()
	s, files := newTestStore(t, nil, nil)

	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, storage_manager.ErrNotFound)
	assert.NotErrorIs(t, err, memerrors.ErrCorruptRecord)

	require.NoError(t, files.Write(ctx, recordPath(2), []byte("{")))
	_, err = s.Get(ctx, 2)
	assert.ErrorIs(t, err, memerrors.ErrCorruptRecord)

	_, ok := s.Lookup(ctx, 2)
	assert.False(t, ok)
}

func TestStore_CreateAndLink(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil, nil)
	when := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, &MemoryRecord{ID: 10, Speaker: "Maggie", Message: "hello", Time: when}))
	assert.ErrorIs(t, s.Create(ctx, &MemoryRecord{ID: 10, Speaker: "x", Time: when}), ErrExists)

	require.NoError(t, s.LinkResulting(ctx, 10, 11))
	assert.ErrorIs(t, s.LinkResulting(ctx, 10, 12), ErrLinkAlreadySet)

	rec, err := s.Get(ctx, 10)
	require.NoError(t, err)
	next, ok := rec.ResultingMessageID.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(11), next)
	assert.Equal(t, when, rec.Time)

	require.NoError(t, s.Delete(ctx, 10))
	require.NoError(t, s.Delete(ctx, 10))
	_, ok = s.Lookup(ctx, 10)
	assert.False(t, ok)
}

// gatedFiles pauses the first read of one path after the bytes are in hand.
type gatedFiles struct {
	storage_manager.FileProvider
	path    string
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedFiles) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := g.FileProvider.Read(ctx, path)
	if path == g.path {
		g.once.Do(func() {
			close(g.read)
			<-g.release
		})
	}
	return data, err
}

func TestStore_LinkDuringReadIsNotMaskedByCache(t *testing.T) {
	ctx := context.Background()
	files := &gatedFiles{
		FileProvider: storage_manager.NewLocalFileProvider(t.TempDir()),
		path:         recordPath(10),
		read:         make(chan struct{}),
		release:      make(chan struct{}),
	}
	s, err := New(Config{FileProvider: files})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	when := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, &MemoryRecord{ID: 10, Speaker: "Maggie", Message: "hello", Time: when}))

	done := make(chan *MemoryRecord)
	go func() {
		rec, err := s.Get(ctx, 10)
		assert.NoError(t, err)
		done <- rec
	}()

	<-files.read
	require.NoError(t, s.LinkResulting(ctx, 10, 11))
	close(files.release)

	early := <-done
	require.NotNil(t, early)
	assert.False(t, early.ResultingMessageID.IsSet())
	s.cache.Wait()

	rec, err := s.Get(ctx, 10)
	require.NoError(t, err)
	next, ok := rec.ResultingMessageID.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(11), next)
}

func TestStore_NewID(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC) }
	prefixes := []int{4321, 4321, 5555}
	calls := 0
	rnd := func() int { p := prefixes[calls%len(prefixes)]; calls++; return p }

	s, _ := newTestStore(t, now, rnd)

	id, err := s.NewID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(432120241231235958), id)
	assert.Len(t, strconv.FormatInt(id, 10), 18)

	require.NoError(t, s.Create(ctx, &MemoryRecord{ID: id, Speaker: "a", Time: now()}))
	id2, err := s.NewID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(555520241231235958), id2)
}

func TestStore_AppendBuildsChain(t *testing.T) {
	ctx := context.Background()
	seq := 1000
	s, _ := newTestStore(t, nil, func() int { seq++; return seq })

	first, err := s.Append(ctx, "conversation", "Maggie", "how was your day?")
	require.NoError(t, err)
	assert.Nil(t, first.PriorMessageID)

	second, err := s.Append(ctx, "conversation", "Rhoda", "quiet, yours?")
	require.NoError(t, err)
	third, err := s.Append(ctx, "conversation", "Maggie", "busy!")
	require.NoError(t, err)

	head, ok, err := s.Head(ctx, "conversation")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, third.ID, head)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	next, _ := got.ResultingMessageID.Get()
	assert.Equal(t, second.ID, next)

	got, err = s.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, *got.PriorMessageID)
	next, _ = got.ResultingMessageID.Get()
	assert.Equal(t, third.ID, next)

	_, ok, err = s.Head(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ConcurrentAppendsKeepOneChain(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	seq := 1000
	s, _ := newTestStore(t, nil, func() int { mu.Lock(); defer mu.Unlock(); seq++; return seq })

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, "conversation", "Maggie", strconv.Itoa(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// walk back from the head; every record must be reached exactly once
	id, ok, err := s.Head(ctx, "conversation")
	require.NoError(t, err)
	require.True(t, ok)
	seen := 0
	for {
		rec, err := s.Get(ctx, id)
		require.NoError(t, err)
		seen++
		if rec.PriorMessageID == nil {
			break
		}
		prior, err := s.Get(ctx, *rec.PriorMessageID)
		require.NoError(t, err)
		next, _ := prior.ResultingMessageID.Get()
		assert.Equal(t, rec.ID, next)
		id = prior.ID
	}
	assert.Equal(t, n, seen)
}

func TestMakeID(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 2, 0, time.UTC)
	assert.Equal(t, int64(123420240309070502), MakeID(1234, at))
	assert.Equal(t, int64(4220240309070502), MakeID(42, at))
	assert.Equal(t, int64(999920240309070502), MakeID(19999, at))

	p := RandomPrefix()
	assert.GreaterOrEqual(t, p, 1000)
	assert.Less(t, p, 10000)
}
