package rollover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// SummaryRecord describes the summary of one archived conversation. Its ID is
// also the key of its vector in the summary namespace.
type SummaryRecord struct {
	ID                 int64     `json:"id"`
	ConversationDate   string    `json:"conversation_date"`
	ConversationNumber string    `json:"conversation_number"`
	SummaryText        string    `json:"summary_text"`
	EmbeddingID        int64     `json:"summary_embedding_id"`
	ArchiveKey         string    `json:"archive_key"`
	CreatedAt          time.Time `json:"created_at"`
}

// SummaryStore resolves summary IDs to their records.
type SummaryStore struct {
	files storage_manager.FileProvider
	log   logger.Logger
}

func summaryPath(id int64) string {
	return summaryPrefix + strconv.FormatInt(id, 10) + ".json"
}

func (s *SummaryStore) exists(ctx context.Context, id int64) (bool, error) {
	return s.files.Exists(ctx, summaryPath(id))
}

func (s *SummaryStore) put(ctx context.Context, rec *SummaryRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := s.files.Write(ctx, summaryPath(rec.ID), data); err != nil {
		return fmt.Errorf("write summary %d: %w", rec.ID, err)
	}
	if err := s.files.Write(ctx, summaryMetaKey(rec.ArchiveKey), data); err != nil {
		return fmt.Errorf("write summary metadata for %s: %w", rec.ArchiveKey, err)
	}
	return nil
}

// Get loads a summary record.
func (s *SummaryStore) Get(ctx context.Context, id int64) (*SummaryRecord, error) {
	data, err := s.files.Read(ctx, summaryPath(id))
	if err != nil {
		return nil, fmt.Errorf("read summary %d: %w", id, err)
	}
	var rec SummaryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, memerrors.E(memerrors.KindCorruptRecord, "decode summary", err)
	}
	if rec.ID != id || rec.SummaryText == "" {
		return nil, memerrors.E(memerrors.KindCorruptRecord, "decode summary", fmt.Errorf("summary %d is incomplete", id))
	}
	return &rec, nil
}

// Lookup is Get for search resolution; unreadable records are logged.
func (s *SummaryStore) Lookup(ctx context.Context, id int64) (*SummaryRecord, bool) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, storage_manager.ErrNotFound) {
			s.log.Warn("Summary record unreadable", logger.RecordIDField(id), logger.ErrorField(err))
		}
		return nil, false
	}
	return rec, true
}

// TaskHandle tracks one background summarization.
type TaskHandle struct {
	ID         ulid.ULID `json:"id"`
	ArchiveKey string    `json:"archive_key"`

	done    chan struct{}
	err     error
	summary *SummaryRecord
}

func newTaskHandle(archiveKey string, at time.Time) *TaskHandle {
	return &TaskHandle{
		ID:         ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()),
		ArchiveKey: archiveKey,
		done:       make(chan struct{}),
	}
}

// Done is closed when the task has finished.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Err is the task outcome. It is only meaningful after Done is closed.
func (h *TaskHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Summary is the stored record, nil until the task finished with one.
func (h *TaskHandle) Summary() *SummaryRecord {
	select {
	case <-h.done:
		return h.summary
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (h *TaskHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskError is delivered on Manager.Errors for failed tasks.
type TaskError struct {
	TaskID     ulid.ULID
	ArchiveKey string
	Err        error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("summary task %s for %s: %v", e.TaskID, e.ArchiveKey, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
