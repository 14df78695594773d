// Package rollover decides at the start of every turn whether the live
// conversation has gone idle or crossed midnight. A rolled over transcript is
// archived and cleared at once; its summary is produced in the background and
// embedded into the summary namespace.
package rollover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/internal/summarizer"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

const (
	DefaultEarlierTodayMaxChars = 2000
	DefaultSummaryTimeout       = 2 * time.Minute
)

// Decision is the outcome of a rollover check.
type Decision struct {
	State   State         `json:"state"`
	Reason  Reason        `json:"reason"`
	Header  string        `json:"header"`
	Elapsed time.Duration `json:"elapsed_ns"`
	// Archived is set on the one check that archived the transcript
	Archived   bool   `json:"archived"`
	ArchiveKey string `json:"archive_key,omitempty"`
	// Task is the background summary, nil when none was started
	Task *TaskHandle `json:"task,omitempty"`
}

// Event is published for rollovers and finished summary tasks.
type Event struct {
	Type       string    `json:"type"`
	Reason     Reason    `json:"reason,omitempty"`
	ArchiveKey string    `json:"archive_key,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	SummaryID  int64     `json:"summary_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

const (
	EventRollover      = "rollover"
	EventSummaryStored = "summary_stored"
	EventSummaryFailed = "summary_failed"
)

// ContextBuilder assembles the reply context for a transcript: constant
// entries, knowledge base text and earlier summaries. An empty string means
// nothing applied.
type ContextBuilder func(ctx context.Context, transcript string) string

// Config holds the collaborators and thresholds of a Manager.
type Config struct {
	// Files is the transcripts namespace
	Files storage_manager.FileProvider
	// Vectors embeds summaries; nil keeps summaries unsearchable
	Vectors          *vector_index.Store
	SummaryNamespace string
	// Summarizer nil archives without summarizing
	Summarizer summarizer.Summarizer
	// ContextBuilder nil summarizes the transcript alone
	ContextBuilder       ContextBuilder
	IdleThreshold        time.Duration
	EarlierTodayMaxChars int
	SummaryTimeout       time.Duration
	Location             *time.Location
	ErrorBuffer          int
	OnEvent              func(Event)
	Logger               logger.Logger
	Metrics              *metrics.Metrics
	Now                  func() time.Time
	Rand                 func() int
}

// Manager owns the live transcript and its rollover state.
type Manager struct {
	cfg       Config
	files     storage_manager.FileProvider
	summaries *SummaryStore
	log       logger.Logger

	// mu serializes state and live transcript changes
	mu       sync.Mutex
	bufferMu sync.Mutex

	tasks  sync.WaitGroup
	active sync.Map
	errs   chan error

	buildMu sync.RWMutex
	build   ContextBuilder
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Files == nil {
		return nil, errors.New("file provider cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.SummaryNamespace == "" {
		cfg.SummaryNamespace = vector_index.NamespaceSummaries
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}
	if cfg.EarlierTodayMaxChars <= 0 {
		cfg.EarlierTodayMaxChars = DefaultEarlierTodayMaxChars
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultSummaryTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = 16
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = record_store.RandomPrefix
	}

	return &Manager{
		cfg:       cfg,
		files:     cfg.Files,
		summaries: &SummaryStore{files: cfg.Files, log: cfg.Logger},
		log:       cfg.Logger.WithFields(logger.StringField("component", "rollover")),
		errs:      make(chan error, cfg.ErrorBuffer),
		build:     cfg.ContextBuilder,
	}, nil
}

// SetContextBuilder replaces the builder used for summaries started from now
// on. The engine registers itself here once it exists.
func (m *Manager) SetContextBuilder(fn ContextBuilder) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	m.build = fn
}

func (m *Manager) background(ctx context.Context, transcript string) string {
	m.buildMu.RLock()
	fn := m.build
	m.buildMu.RUnlock()
	if fn == nil {
		return ""
	}
	return fn(ctx, transcript)
}

// Summaries resolves summary IDs found in the summary namespace.
func (m *Manager) Summaries() *SummaryStore {
	return m.summaries
}

// SummaryNamespace is the vector namespace summaries are embedded into.
func (m *Manager) SummaryNamespace() string {
	return m.cfg.SummaryNamespace
}

// Errors delivers failed summary tasks. Errors are dropped, and logged, when
// nobody drains the channel.
func (m *Manager) Errors() <-chan error {
	return m.errs
}

func (m *Manager) engineMetrics() *metrics.EngineMetrics {
	if m.cfg.Metrics == nil {
		return nil
	}
	return m.cfg.Metrics.Engine
}

func (m *Manager) loadState(ctx context.Context) (threadState, error) {
	var st threadState
	data, err := m.files.Read(ctx, statePath)
	if errors.Is(err, storage_manager.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read rollover state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return threadState{}, fmt.Errorf("decode rollover state: %w", err)
	}
	return st, nil
}

func (m *Manager) saveState(ctx context.Context, st threadState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := m.files.Write(ctx, statePath, data); err != nil {
		return fmt.Errorf("write rollover state: %w", err)
	}
	return nil
}

// Touch records at as the time of the latest message.
func (m *Manager) Touch(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.loadState(ctx)
	if err != nil {
		return err
	}
	at = at.UTC()
	st.LastMessageAt = &at
	return m.saveState(ctx, st)
}

// Append adds an utterance to the live transcript.
func (m *Manager) Append(ctx context.Context, speaker, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live, err := readText(ctx, m.files, livePath)
	if err != nil {
		return fmt.Errorf("read live transcript: %w", err)
	}
	if err := m.files.Write(ctx, livePath, []byte(live+TranscriptLine(speaker, text))); err != nil {
		return fmt.Errorf("write live transcript: %w", err)
	}
	return nil
}

// Transcript returns the live transcript.
func (m *Manager) Transcript(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return readText(ctx, m.files, livePath)
}

// EarlierToday returns the rolling buffer of today's summaries.
func (m *Manager) EarlierToday(ctx context.Context) (string, error) {
	m.bufferMu.Lock()
	defer m.bufferMu.Unlock()
	return readText(ctx, m.files, earlierTodayPath)
}

func (m *Manager) appendEarlierToday(ctx context.Context, summary string) error {
	m.bufferMu.Lock()
	defer m.bufferMu.Unlock()

	current, err := readText(ctx, m.files, earlierTodayPath)
	if err != nil {
		return err
	}
	next := keepTail(strings.TrimSpace(current+" "+summary), m.cfg.EarlierTodayMaxChars)
	return m.files.Write(ctx, earlierTodayPath, []byte(next))
}

func (m *Manager) clearEarlierToday(ctx context.Context) error {
	m.bufferMu.Lock()
	defer m.bufferMu.Unlock()
	return m.files.Write(ctx, earlierTodayPath, nil)
}

// archiveLive copies the live transcript to a dated archive key and clears
// it. Callers hold m.mu, so no turn reads a half-cleared transcript. An empty
// transcript is not archived.
func (m *Manager) archiveLive(ctx context.Context, now time.Time) (string, string, error) {
	live, err := readText(ctx, m.files, livePath)
	if err != nil {
		return "", "", fmt.Errorf("read live transcript: %w", err)
	}
	if strings.TrimSpace(live) == "" {
		return "", "", nil
	}

	key, err := freeArchiveKey(ctx, m.files, now.In(m.cfg.Location))
	if err != nil {
		return "", "", fmt.Errorf("pick archive key: %w", err)
	}
	if err := m.files.Write(ctx, key, []byte(live)); err != nil {
		return "", "", fmt.Errorf("write archive %s: %w", key, err)
	}
	if err := m.files.Write(ctx, livePath, nil); err != nil {
		return key, "", fmt.Errorf("clear live transcript: %w", err)
	}
	return key, live, nil
}

// Check evaluates the rollover rules for the current turn and performs the
// archive and clear at most once per last message.
func (m *Manager) Check(ctx context.Context) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	st, err := m.loadState(ctx)
	if err != nil {
		return Decision{State: StateActive, Reason: ReasonNoHistory}, err
	}
	hadStart := st.ConvoStartAt != nil
	state, reason := evaluate(&st, now, m.cfg.Location, m.cfg.IdleThreshold)
	d := Decision{State: state, Reason: reason}

	switch reason {
	case ReasonNoHistory:
		return d, nil

	case ReasonActive:
		d.Elapsed = now.Sub(*st.ConvoStartAt)
		d.Header = Header(reason, d.Elapsed)
		if !hadStart {
			return d, m.saveState(ctx, st)
		}
		return d, nil

	case ReasonFreshThread:
		key, _, err := m.archiveLive(ctx, now)
		if err != nil {
			return d, err
		}
		d.ArchiveKey = key
		d.Archived = key != ""
		start := now.UTC()
		st.ConvoStartAt = &start
		return d, m.saveState(ctx, st)
	}

	d.Header = Header(reason, 0)
	if st.alreadyRolled() {
		return d, nil
	}

	key, transcript, err := m.archiveLive(ctx, now)
	if err != nil {
		m.log.Error("Rollover archive failed", logger.StringField("reason", string(reason)), logger.ErrorField(err))
		return d, err
	}
	d.ArchiveKey = key
	d.Archived = key != ""

	if reason == ReasonDayBoundary {
		if err := m.clearEarlierToday(ctx); err != nil {
			m.log.Warn("Could not clear earlier-today buffer", logger.ErrorField(err))
		}
	}

	start := now.UTC()
	st.ConvoStartAt = &start
	st.RolledOverMessageAt = st.LastMessageAt
	if err := m.saveState(ctx, st); err != nil {
		return d, err
	}

	m.engineMetrics().ObserveRollover(string(reason))
	m.log.Info("Conversation rolled over",
		logger.StringField("reason", string(reason)),
		logger.StringField("archive", key))
	m.publish(Event{Type: EventRollover, Reason: reason, ArchiveKey: key, At: now})

	if d.Archived && m.cfg.Summarizer != nil {
		d.Task = m.startSummary(ctx, key, transcript, now)
	}
	return d, nil
}

func (m *Manager) publish(e Event) {
	if m.cfg.OnEvent != nil {
		m.cfg.OnEvent(e)
	}
}

// startSummary runs the summary detached from the turn; shutting down does
// not cancel it.
func (m *Manager) startSummary(ctx context.Context, archiveKey, transcript string, at time.Time) *TaskHandle {
	h := newTaskHandle(archiveKey, at)
	m.cfg.Metrics.IncrementJobCounter(metrics.JobMetricTotal)
	m.active.Store(h.ID, h)
	m.tasks.Add(1)

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SummaryTimeout)
	go func() {
		defer m.tasks.Done()
		defer m.active.Delete(h.ID)
		defer cancel()
		defer close(h.done)

		h.summary, h.err = m.summarize(taskCtx, archiveKey, transcript, at)
		m.finish(h)
	}()
	return h
}

func (m *Manager) summarize(ctx context.Context, archiveKey, transcript string, at time.Time) (*SummaryRecord, error) {
	in := summarizer.Input{Transcript: transcript, Background: m.background(ctx, transcript)}
	text, err := m.cfg.Summarizer.Summarize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	id, err := m.newSummaryID(ctx)
	if err != nil {
		return nil, err
	}
	local := at.In(m.cfg.Location)
	rec := &SummaryRecord{
		ID:                 id,
		ConversationDate:   local.Format("2006-01-02"),
		ConversationNumber: conversationNumber(local),
		SummaryText:        text,
		EmbeddingID:        id,
		ArchiveKey:         archiveKey,
		CreatedAt:          m.cfg.Now().UTC(),
	}
	if err := m.summaries.put(ctx, rec); err != nil {
		return nil, err
	}

	if err := m.appendEarlierToday(ctx, text); err != nil {
		m.log.Warn("Could not append to earlier-today buffer", logger.ErrorField(err))
	}

	if m.cfg.Vectors != nil && !m.cfg.Vectors.UpsertID(ctx, m.cfg.SummaryNamespace, text, id) {
		return rec, fmt.Errorf("summary %d stored but not embedded", id)
	}
	return rec, nil
}

func (m *Manager) newSummaryID(ctx context.Context) (int64, error) {
	for i := 0; i < 10; i++ {
		id := record_store.MakeID(m.cfg.Rand(), m.cfg.Now())
		taken, err := m.summaries.exists(ctx, id)
		if err != nil {
			return 0, err
		}
		if !taken {
			return id, nil
		}
	}
	return 0, errors.New("no free summary id")
}

func (m *Manager) finish(h *TaskHandle) {
	fields := []logger.LogField{
		logger.StringField("task_id", h.ID.String()),
		logger.StringField("archive", h.ArchiveKey),
	}
	e := Event{Type: EventSummaryStored, ArchiveKey: h.ArchiveKey, TaskID: h.ID.String(), At: m.cfg.Now()}
	if h.summary != nil {
		e.SummaryID = h.summary.ID
		fields = append(fields, logger.RecordIDField(h.summary.ID))
	}

	if h.err == nil {
		m.cfg.Metrics.IncrementJobCounter(metrics.JobMetricTotalSuccess)
		m.log.Info("Conversation summary stored", fields...)
		m.publish(e)
		return
	}

	m.cfg.Metrics.IncrementJobCounter(metrics.JobMetricTotalFailed)
	m.log.Warn("Conversation summary failed", append(fields, logger.ErrorField(h.err))...)
	e.Type = EventSummaryFailed
	e.Error = h.err.Error()
	m.publish(e)

	select {
	case m.errs <- &TaskError{TaskID: h.ID, ArchiveKey: h.ArchiveKey, Err: h.err}:
	default:
		m.log.Warn("Summary error channel full, dropping error", fields...)
	}
}

// Running reports how many summary tasks have not finished.
func (m *Manager) Running() int {
	n := 0
	m.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown waits for running summaries until ctx is done. Tasks still running
// then are abandoned and counted.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		abandoned := 0
		m.active.Range(func(_, _ any) bool {
			abandoned++
			m.cfg.Metrics.IncrementJobCounter(metrics.JobMetricTotalKilled)
			return true
		})
		m.log.Warn("Abandoning running summary tasks", logger.IntField("tasks", abandoned))
		return ctx.Err()
	}
}
