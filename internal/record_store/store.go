package record_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

const (
	recordsPrefix = "records/"
	threadsPrefix = "threads/"

	idAttempts = 10
)

// ErrExists is returned when creating a record whose ID is taken.
var ErrExists = errors.New("record already exists")

// Store reads and writes MemoryRecords through a FileProvider.
type Store struct {
	files storage_manager.FileProvider
	cache *ristretto.Cache
	log   logger.Logger
	now   func() time.Time
	rand  func() int

	linkMu sync.Mutex

	// cacheMu orders cache fills against writes. A fill whose read started
	// before the latest write is dropped.
	cacheMu    sync.Mutex
	generation uint64

	threadMu    sync.Mutex
	threadLocks map[string]*sync.Mutex
}

// Config holds configuration for the record store.
type Config struct {
	FileProvider storage_manager.FileProvider
	Logger       logger.Logger
	// CacheMaxCost bounds the decoded-record cache in bytes; 0 means 32 MiB
	CacheMaxCost int64
	// Now and Rand are injectable for tests
	Now  func() time.Time
	Rand func() int
}

// New creates a record store.
func New(cfg Config) (*Store, error) {
	if cfg.FileProvider == nil {
		return nil, errors.New("file provider cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.CacheMaxCost <= 0 {
		cfg.CacheMaxCost = 32 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = RandomPrefix
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     cfg.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	return &Store{
		files:       cfg.FileProvider,
		cache:       cache,
		log:         cfg.Logger,
		now:         cfg.Now,
		rand:        cfg.Rand,
		threadLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the cache.
func (s *Store) Close() {
	s.cache.Close()
}

func recordPath(id int64) string {
	return recordsPrefix + strconv.FormatInt(id, 10) + ".json"
}

// MakeID builds an 18-digit ID from a 4-digit prefix and t as YYYYMMDDhhmmss.
func MakeID(prefix int, t time.Time) int64 {
	// at most 9999 followed by 14 digits, which fits in an int64
	id, _ := strconv.ParseInt(fmt.Sprintf("%04d%s", prefix%10000, t.Format("20060102150405")), 10, 64)
	return id
}

// RandomPrefix is the default ID prefix source.
func RandomPrefix() int {
	return 1000 + rand.IntN(9000) //nolint:gosec // ID prefix, not a secret
}

// NewID returns an unused 18-digit ID: a 4-digit random prefix followed by
// the current time as YYYYMMDDhhmmss.
func (s *Store) NewID(ctx context.Context) (int64, error) {
	for i := 0; i < idAttempts; i++ {
		id := MakeID(s.rand(), s.now())
		taken, err := s.files.Exists(ctx, recordPath(id))
		if err != nil {
			return 0, fmt.Errorf("check id %d: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no free record id after %d attempts", idAttempts)
}

// Get loads a record. A missing file wraps storage_manager.ErrNotFound; an
// unreadable one matches memerrors.ErrCorruptRecord.
func (s *Store) Get(ctx context.Context, id int64) (*MemoryRecord, error) {
	if v, ok := s.cache.Get(id); ok {
		rec := v.(MemoryRecord)
		return &rec, nil
	}

	s.cacheMu.Lock()
	gen := s.generation
	s.cacheMu.Unlock()

	data, err := s.files.Read(ctx, recordPath(id))
	if err != nil {
		return nil, fmt.Errorf("read record %d: %w", id, err)
	}
	rec, err := decodeRecord(data, id)
	if err != nil {
		return nil, err
	}
	s.fill(gen, rec, int64(len(data)))
	return rec, nil
}

func (s *Store) fill(gen uint64, rec *MemoryRecord, cost int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.generation {
		return
	}
	s.cache.Set(rec.ID, *rec, cost)
}

// invalidate drops id from the cache and fails every fill already in flight.
func (s *Store) invalidate(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.cache.Del(id)
}

// Lookup is Get for callers that only care whether a record resolved.
// Corrupt records are logged.
func (s *Store) Lookup(ctx context.Context, id int64) (*MemoryRecord, bool) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, storage_manager.ErrNotFound) {
			s.log.Warn("Memory record unreadable", logger.RecordIDField(id), logger.ErrorField(err))
		}
		return nil, false
	}
	return rec, true
}

func (s *Store) write(ctx context.Context, rec *MemoryRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.ID, err)
	}
	if err := s.files.Write(ctx, recordPath(rec.ID), data); err != nil {
		return fmt.Errorf("write record %d: %w", rec.ID, err)
	}
	s.invalidate(rec.ID)
	return nil
}

// Create persists a new record. It fails with ErrExists rather than overwrite.
func (s *Store) Create(ctx context.Context, rec *MemoryRecord) error {
	exists, err := s.files.Exists(ctx, recordPath(rec.ID))
	if err != nil {
		return fmt.Errorf("check record %d: %w", rec.ID, err)
	}
	if exists {
		return fmt.Errorf("%w: %d", ErrExists, rec.ID)
	}
	return s.write(ctx, rec)
}

// LinkResulting sets id's forward link to next. The link is write-once.
func (s *Store) LinkResulting(ctx context.Context, id, next int64) error {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	s.invalidate(id)
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rec.ResultingMessageID.Set(next); err != nil {
		return fmt.Errorf("record %d: %w", id, err)
	}
	return s.write(ctx, rec)
}

// Delete removes a record file. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := s.files.Delete(ctx, recordPath(id))
	s.invalidate(id)
	return err
}

type threadHead struct {
	LastID    int64     `json:"last_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) threadLock(thread string) *sync.Mutex {
	s.threadMu.Lock()
	defer s.threadMu.Unlock()
	l, ok := s.threadLocks[thread]
	if !ok {
		l = &sync.Mutex{}
		s.threadLocks[thread] = l
	}
	return l
}

// Head returns the last record appended to thread.
func (s *Store) Head(ctx context.Context, thread string) (int64, bool, error) {
	data, err := s.files.Read(ctx, threadsPrefix+thread+".json")
	if errors.Is(err, storage_manager.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var h threadHead
	if err := json.Unmarshal(data, &h); err != nil {
		return 0, false, fmt.Errorf("decode thread head %s: %w", thread, err)
	}
	return h.LastID, h.LastID > 0, nil
}

// Append creates the next record of thread, links it behind the current head
// and advances the head. The new record is durable before the head moves, so a
// crash leaves at worst an unlinked record.
func (s *Store) Append(ctx context.Context, thread, speaker, message string) (*MemoryRecord, error) {
	l := s.threadLock(thread)
	l.Lock()
	defer l.Unlock()

	prior, hasPrior, err := s.Head(ctx, thread)
	if err != nil {
		s.log.Warn("Thread head unreadable, starting a new chain",
			logger.StringField("thread", thread), logger.ErrorField(err))
		hasPrior = false
	}

	id, err := s.NewID(ctx)
	if err != nil {
		return nil, err
	}
	rec := &MemoryRecord{
		ID:      id,
		Speaker: speaker,
		Message: message,
		Time:    s.now().UTC(),
		Thread:  thread,
	}
	if hasPrior {
		rec.PriorMessageID = &prior
	}
	if err := s.Create(ctx, rec); err != nil {
		return nil, err
	}

	if hasPrior {
		if err := s.LinkResulting(ctx, prior, id); err != nil {
			// the chain stays walkable backwards through prior_message_id
			s.log.Warn("Could not link prior record forward",
				logger.RecordIDField(prior),
				logger.Int64Field("next_id", id),
				logger.ErrorField(err))
		}
	}

	head, err := json.Marshal(threadHead{LastID: id, UpdatedAt: rec.Time})
	if err != nil {
		return nil, err
	}
	if err := s.files.Write(ctx, threadsPrefix+thread+".json", head); err != nil {
		return rec, fmt.Errorf("advance thread head %s: %w", thread, err)
	}
	return rec, nil
}
