package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/lewisedginton/memory_engine/internal/memory_graph"
	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/rollover"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
)

var at = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type utterance struct{ speaker, text string }

type fakeEngine struct {
	recorded  []utterance
	failAfter int

	recall    []*record_store.MemoryRecord
	exchanges []memory_graph.Exchange
	summaries []*rollover.SummaryRecord
	queries   []string
}

func (f *fakeEngine) RecordUtterance(ctx context.Context, speaker, text string) (int64, error) {
	if f.failAfter > 0 && len(f.recorded) == f.failAfter {
		return 0, errors.New("storage unavailable")
	}
	f.recorded = append(f.recorded, utterance{speaker, text})
	return int64(len(f.recorded)), nil
}

func (f *fakeEngine) RecentMemory(ctx context.Context, query string, k int) (string, []*record_store.MemoryRecord) {
	f.queries = append(f.queries, "recall:"+query)
	return "", f.recall
}

func (f *fakeEngine) RecentCausalMemory(ctx context.Context, query string, k int) (string, []memory_graph.Exchange) {
	f.queries = append(f.queries, "causal:"+query)
	return "", f.exchanges
}

func (f *fakeEngine) SummaryMemory(ctx context.Context, query string, k int) (string, []*rollover.SummaryRecord) {
	f.queries = append(f.queries, "summary:"+query)
	return "", f.summaries
}

// fakeSession implements session.Session over a fixed event list.
type fakeSession struct {
	id     string
	events []*session.Event
}

func (s *fakeSession) AppName() string           { return "companion" }
func (s *fakeSession) UserID() string            { return "maggie" }
func (s *fakeSession) ID() string                { return s.id }
func (s *fakeSession) State() session.State      { return nil }
func (s *fakeSession) LastUpdateTime() time.Time { return at }
func (s *fakeSession) Events() session.Events    { return fakeEvents(s.events) }

func (s *fakeSession) say(author, text string) {
	s.events = append(s.events, event(author, text))
}

func (s *fakeSession) add(e *session.Event) {
	s.events = append(s.events, e)
}

type fakeEvents []*session.Event

func (e fakeEvents) All() iter.Seq[*session.Event] {
	return func(yield func(*session.Event) bool) {
		for _, ev := range e {
			if !yield(ev) {
				return
			}
		}
	}
}

func (e fakeEvents) Len() int { return len(e) }

func (e fakeEvents) At(i int) *session.Event {
	if i < 0 || i >= len(e) {
		return nil
	}
	return e[i]
}

func event(author, text string) *session.Event {
	ev := &session.Event{Author: author, Timestamp: at}
	ev.Content = genai.NewContentFromText(text, genai.RoleUser)
	return ev
}

func newService(t *testing.T, eng *fakeEngine) (*Service, storage_manager.FileProvider) {
	t.Helper()
	files := storage_manager.NewLocalFileProvider(t.TempDir())
	s, err := New(Config{Engine: eng, FileProvider: files, AgentName: "Ava", OtherName: "Maggie"})
	require.NoError(t, err)
	return s, files
}

func TestNew_Validates(t *testing.T) {
	files := storage_manager.NewLocalFileProvider(t.TempDir())
	_, err := New(Config{FileProvider: files, OtherName: "Maggie"})
	assert.Error(t, err)
	_, err = New(Config{Engine: &fakeEngine{}, OtherName: "Maggie"})
	assert.Error(t, err)
	_, err = New(Config{Engine: &fakeEngine{}, FileProvider: files})
	assert.Error(t, err)

	s, err := New(Config{Engine: &fakeEngine{}, FileProvider: files, OtherName: "Maggie"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRecallK, s.cfg.RecallK)
}

func TestAddSession_RecordsEachEventOnce(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	s, files := newService(t, eng)

	sess := &fakeSession{id: "s1"}
	sess.say(UserAuthor, "I got the job!")
	sess.say("companion_agent", "Congratulations!")
	sess.add(&session.Event{Author: "companion_agent", Timestamp: at})
	require.NoError(t, s.AddSession(ctx, sess))
	assert.Equal(t, []utterance{{"Maggie", "I got the job!"}, {"Ava", "Congratulations!"}}, eng.recorded)

	// the session grows and is added again
	sess.say(UserAuthor, "I start Monday")
	require.NoError(t, s.AddSession(ctx, sess))
	require.NoError(t, s.AddSession(ctx, sess))
	assert.Len(t, eng.recorded, 3)
	assert.Equal(t, utterance{"Maggie", "I start Monday"}, eng.recorded[2])

	ok, err := files.Exists(ctx, progressPath("companion", "maggie", "s1"))
	require.NoError(t, err)
	assert.True(t, ok)

	// a new service over the same files resumes where the last one stopped
	again, err := New(Config{Engine: eng, FileProvider: files, AgentName: "Ava", OtherName: "Maggie"})
	require.NoError(t, err)
	require.NoError(t, again.AddSession(ctx, sess))
	assert.Len(t, eng.recorded, 3)
}

func TestAddSession_FailureResumesAtFailedEvent(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{failAfter: 1}
	s, _ := newService(t, eng)

	sess := &fakeSession{id: "s2"}
	sess.say(UserAuthor, "first")
	sess.say(UserAuthor, "second")
	err := s.AddSession(ctx, sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record event 1 of session s2")

	eng.failAfter = 0
	require.NoError(t, s.AddSession(ctx, sess))
	assert.Equal(t, []utterance{{"Maggie", "first"}, {"Maggie", "second"}}, eng.recorded)
}

func TestAddSession_Nil(t *testing.T) {
	s, _ := newService(t, &fakeEngine{})
	assert.Error(t, s.AddSession(context.Background(), nil))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	statement := &record_store.MemoryRecord{ID: 1, Speaker: "Maggie", Message: "I love the beach", Time: at}
	reply := &record_store.MemoryRecord{ID: 2, Speaker: "Ava", Message: "Me too", Time: at.Add(time.Minute)}
	eng := &fakeEngine{
		recall:    []*record_store.MemoryRecord{statement},
		exchanges: []memory_graph.Exchange{{Statement: statement, Reply: reply}},
		summaries: []*rollover.SummaryRecord{{ID: 9, SummaryText: "We talked about the beach.", CreatedAt: at.Add(time.Hour)}},
	}
	s, _ := newService(t, eng)

	resp, err := s.Search(ctx, &memory.SearchRequest{Query: "beach", AppName: "companion", UserID: "maggie"})
	require.NoError(t, err)
	assert.Equal(t, []string{"recall:beach", "causal:beach", "summary:beach"}, eng.queries)
	require.Len(t, resp.Memories, 3)

	assert.Equal(t, UserAuthor, resp.Memories[0].Author)
	assert.Equal(t, "I love the beach", contentText(resp.Memories[0].Content))
	assert.Equal(t, genai.RoleUser, resp.Memories[0].Content.Role)
	assert.Equal(t, at, resp.Memories[0].Timestamp)

	assert.Equal(t, "Ava", resp.Memories[1].Author)
	assert.Equal(t, genai.RoleModel, resp.Memories[1].Content.Role)

	assert.Equal(t, SummaryAuthor, resp.Memories[2].Author)
	assert.Equal(t, "We talked about the beach.", contentText(resp.Memories[2].Content))
}

func TestSearch_EmptyQuery(t *testing.T) {
	eng := &fakeEngine{}
	s, _ := newService(t, eng)

	for _, req := range []*memory.SearchRequest{nil, {Query: ""}} {
		resp, err := s.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Empty(t, resp.Memories)
	}
	assert.Empty(t, eng.queries)
}

func TestContentText(t *testing.T) {
	assert.Equal(t, "", contentText(nil))
	c := &genai.Content{Parts: []*genai.Part{
		{Text: " hello "},
		nil,
		{Text: "thinking", Thought: true},
		{Text: "world"},
	}}
	assert.Equal(t, "hello world", contentText(c))
}
