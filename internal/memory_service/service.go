// Package memory_service lets an ADK runner use the engine as its memory:
// sessions added to it become recorded utterances, and searches are answered
// from recall, causal chains and conversation summaries.
package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"google.golang.org/adk/memory"
	"google.golang.org/adk/session"

	"github.com/lewisedginton/memory_engine/internal/memory_graph"
	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/rollover"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// UserAuthor is the author ADK gives events typed by the user.
const UserAuthor = "user"

// SummaryAuthor is the author of search results that are conversation summaries.
const SummaryAuthor = "summary"

// Default search sizes.
const (
	DefaultRecallK  = 5
	DefaultCausalK  = 3
	DefaultSummaryK = 2
)

// Engine is the part of the memory engine the service needs.
// *engine.Engine satisfies it.
type Engine interface {
	RecordUtterance(ctx context.Context, speaker, text string) (int64, error)
	RecentMemory(ctx context.Context, query string, k int) (string, []*record_store.MemoryRecord)
	RecentCausalMemory(ctx context.Context, query string, k int) (string, []memory_graph.Exchange)
	SummaryMemory(ctx context.Context, query string, k int) (string, []*rollover.SummaryRecord)
}

// Config holds the collaborators of a Service.
type Config struct {
	Engine Engine
	// FileProvider keeps how many events of each session were recorded
	FileProvider storage_manager.FileProvider
	// AgentName records agent events; empty keeps the event author
	AgentName string
	// OtherName records user events
	OtherName string

	RecallK  int
	CausalK  int
	SummaryK int
	Logger   logger.Logger
}

// Service implements memory.Service on top of the engine.
type Service struct {
	cfg   Config
	files storage_manager.FileProvider
	log   logger.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ memory.Service = (*Service)(nil)

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if cfg.FileProvider == nil {
		return nil, errors.New("file provider cannot be nil")
	}
	if cfg.OtherName == "" {
		return nil, errors.New("other speaker name is required")
	}
	if cfg.RecallK <= 0 {
		cfg.RecallK = DefaultRecallK
	}
	if cfg.CausalK <= 0 {
		cfg.CausalK = DefaultCausalK
	}
	if cfg.SummaryK <= 0 {
		cfg.SummaryK = DefaultSummaryK
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	return &Service{
		cfg:   cfg,
		files: cfg.FileProvider,
		log:   cfg.Logger.WithFields(logger.StringField("component", "memory_service")),
		locks: map[string]*sync.Mutex{},
	}, nil
}

// progress is how far into a session's event list AddSession has recorded.
type progress struct {
	SessionID string    `json:"session_id"`
	Recorded  int       `json:"recorded"`
	UpdatedAt time.Time `json:"updated_at"`
}

func progressPath(app, user, sessionID string) string {
	return path.Join("sessions", app, user, sessionID+".json")
}

func (s *Service) sessionLock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// AddSession records every text event not recorded by an earlier call for the
// same session. ADK adds a session repeatedly as it grows.
func (s *Service) AddSession(ctx context.Context, sess session.Session) error {
	if sess == nil {
		return errors.New("session cannot be nil")
	}
	key := progressPath(sess.AppName(), sess.UserID(), sess.ID())
	l := s.sessionLock(key)
	l.Lock()
	defer l.Unlock()

	p, err := s.loadProgress(ctx, key)
	if err != nil {
		return err
	}
	p.SessionID = sess.ID()

	recorded, i := 0, 0
	for event := range sess.Events().All() {
		if i < p.Recorded {
			i++
			continue
		}
		if event != nil {
			if text := contentText(event.Content); text != "" {
				if _, err := s.cfg.Engine.RecordUtterance(ctx, s.speaker(event.Author), text); err != nil {
					p.Recorded = i
					if saveErr := s.saveProgress(ctx, key, p); saveErr != nil {
						s.log.Warn("Could not save session progress", logger.ErrorField(saveErr))
					}
					return fmt.Errorf("record event %d of session %s: %w", i, sess.ID(), err)
				}
				recorded++
			}
		}
		i++
	}
	if i == p.Recorded {
		return nil
	}

	p.Recorded = i
	if err := s.saveProgress(ctx, key, p); err != nil {
		return err
	}
	s.log.Info("Session added to memory",
		logger.StringField("session_id", sess.ID()),
		logger.IntField("recorded", recorded))
	return nil
}

func (s *Service) speaker(author string) string {
	if author == UserAuthor {
		return s.cfg.OtherName
	}
	if s.cfg.AgentName != "" {
		return s.cfg.AgentName
	}
	return author
}

func (s *Service) loadProgress(ctx context.Context, key string) (progress, error) {
	var p progress
	ok, err := s.files.Exists(ctx, key)
	if err != nil {
		return p, fmt.Errorf("check session progress: %w", err)
	}
	if !ok {
		return p, nil
	}
	data, err := s.files.Read(ctx, key)
	if err != nil {
		return p, fmt.Errorf("read session progress: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode session progress %s: %w", key, err)
	}
	return p, nil
}

func (s *Service) saveProgress(ctx context.Context, key string, p progress) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode session progress: %w", err)
	}
	if err := s.files.Write(ctx, key, data); err != nil {
		return fmt.Errorf("write session progress: %w", err)
	}
	return nil
}

// Search answers with the records most like the query, the exchanges around
// what the other speaker said like it, then matching conversation summaries.
// A record appears once even when several lookups return it.
func (s *Service) Search(ctx context.Context, req *memory.SearchRequest) (*memory.SearchResponse, error) {
	resp := &memory.SearchResponse{Memories: []memory.Entry{}}
	if req == nil || req.Query == "" {
		return resp, nil
	}

	seen := map[int64]bool{}
	add := func(r *record_store.MemoryRecord) {
		if r == nil || seen[r.ID] {
			return
		}
		seen[r.ID] = true
		resp.Memories = append(resp.Memories, s.recordEntry(r))
	}

	_, recs := s.cfg.Engine.RecentMemory(ctx, req.Query, s.cfg.RecallK)
	for _, r := range recs {
		add(r)
	}
	_, exchanges := s.cfg.Engine.RecentCausalMemory(ctx, req.Query, s.cfg.CausalK)
	for _, ex := range exchanges {
		add(ex.Statement)
		add(ex.Reply)
		add(ex.Reaction)
	}
	_, summaries := s.cfg.Engine.SummaryMemory(ctx, req.Query, s.cfg.SummaryK)
	for _, sum := range summaries {
		resp.Memories = append(resp.Memories, summaryEntry(sum))
	}

	s.log.Debug("Memory search completed",
		logger.IntField("records", len(seen)),
		logger.IntField("summaries", len(summaries)))
	return resp, nil
}

func (s *Service) recordEntry(r *record_store.MemoryRecord) memory.Entry {
	role := roleModel
	author := r.Speaker
	if r.Speaker == s.cfg.OtherName {
		role = roleUser
		author = UserAuthor
	}
	return memory.Entry{
		Content:   textContent(r.Message, role),
		Author:    author,
		Timestamp: r.Time,
	}
}

func summaryEntry(r *rollover.SummaryRecord) memory.Entry {
	return memory.Entry{
		Content:   textContent(r.SummaryText, roleModel),
		Author:    SummaryAuthor,
		Timestamp: r.CreatedAt,
	}
}
