package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/memory_engine/internal/embedding"
	"github.com/lewisedginton/memory_engine/internal/engine"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/rollover"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/internal/summarizer"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
	"github.com/lewisedginton/memory_engine/pkg/health"
	"github.com/lewisedginton/memory_engine/pkg/httpmiddleware"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

type testAPI struct {
	handler http.Handler
	hub     *Hub
	clock   time.Time
	mcpHits int
}

func (f *testAPI) now() time.Time { return f.clock }

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	f := &testAPI{clock: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	log := logger.NewNopLogger()
	sm := storage_manager.NewWithProvider(storage_manager.NewLocalFileProvider(t.TempDir()))
	m := metrics.NewMetrics(true, false, true, log)
	f.hub = NewHub(log, nil)
	t.Cleanup(f.hub.Close)

	records, err := record_store.New(record_store.Config{FileProvider: sm.GetProvider("records"), Now: f.now})
	require.NoError(t, err)
	vectors := vector_index.NewStore(vector_index.Config{
		Index:    vector_index.NewFlatIndex(sm.GetProvider("index"), embedding.Dimension),
		Embedder: embedding.NewGuard(embedding.NewDeterministicProvider(embedding.Dimension)),
		Metrics:  m.Engine,
	})
	roll, err := rollover.New(rollover.Config{
		Files:      sm.GetProvider("transcripts"),
		Vectors:    vectors,
		Summarizer: summarizer.Extractive{MaxTokens: 20},
		Location:   time.UTC,
		OnEvent:    f.hub.Publish,
		Now:        f.now,
	})
	require.NoError(t, err)
	store, err := knowledgebase.NewFileStore(context.Background(), knowledgebase.FileStoreConfig{
		FileProvider: sm.GetProvider("knowledgebase"),
		Logger:       log,
	})
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Records:       records,
		Vectors:       vectors,
		Rollover:      roll,
		KnowledgeBase: knowledgebase.NewRetriever(store, knowledgebase.DefaultRetrieverConfig(), log, m.Engine),
		AgentName:     "Ava",
		OtherName:     "Maggie",
		Metrics:       m,
		Now:           f.now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	f.handler, err = NewRouter(Config{
		Engine:        eng,
		KnowledgeBase: knowledgebase.NewService(store, log),
		Vectors:       vectors,
		Events:        f.hub,
		Logger:        log,
		Metrics:       m,
		Health:        health.New(health.WithLogger(log)),
		MCP: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mcpHits++
			w.WriteHeader(http.StatusAccepted)
		}),
		MCPPath: "/tools/mcp",
	})
	require.NoError(t, err)
	return f
}

func (f *testAPI) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *testAPI) say(t *testing.T, speaker, text string) int64 {
	t.Helper()
	f.clock = f.clock.Add(time.Minute)
	rec := f.do(t, http.MethodPost, "/v1/utterances", utteranceRequest{Speaker: speaker, Text: text})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[utteranceResponse](t, rec).ID
}

func TestNewRouter_RequiresCollaborators(t *testing.T) {
	_, err := NewRouter(Config{})
	assert.Error(t, err)
}

func TestMCPMount(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/tools/mcp", map[string]any{"jsonrpc": "2.0", "method": "ping"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = f.do(t, http.MethodGet, "/tools/mcp", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 2, f.mcpHits)

	rec = f.do(t, http.MethodPost, "/mcp", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordUtterance(t *testing.T) {
	f := newTestAPI(t)

	id := f.say(t, "Maggie", "I love the beach")
	assert.Greater(t, id, int64(100000000000000000))

	rec := f.do(t, http.MethodPost, "/v1/utterances", utteranceRequest{Speaker: "Maggie"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[errorResponse](t, rec).Kind)

	rec = f.do(t, http.MethodPost, "/v1/utterances", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentMemory(t *testing.T) {
	f := newTestAPI(t)
	f.say(t, "Maggie", "I love the beach")
	f.say(t, "Ava", "The beach is lovely in spring")

	rec := f.do(t, http.MethodGet, "/v1/memories/recent?q="+url.QueryEscape("the beach")+"&k=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[recallResponse](t, rec)
	assert.NotEmpty(t, got.Records)
	assert.Contains(t, got.Text, "//Memory from")

	rec = f.do(t, http.MethodGet, "/v1/memories/recent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/memories/recent?q=beach&k=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCausalMemory(t *testing.T) {
	f := newTestAPI(t)
	f.say(t, "Maggie", "I love the beach")
	f.say(t, "Ava", "The beach is lovely in spring")
	f.say(t, "Maggie", "Let's go in April")

	rec := f.do(t, http.MethodGet, "/v1/memories/causal?q="+url.QueryEscape("I love the beach")+"&k=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[causalResponse](t, rec)
	require.Len(t, got.Exchanges, 1)
	assert.Equal(t, "Maggie", got.Exchanges[0].Statement.Speaker)
}

func TestTurn(t *testing.T) {
	f := newTestAPI(t)
	f.say(t, "Maggie", "I love the beach")
	f.say(t, "Ava", "The beach is lovely in spring")

	f.clock = f.clock.Add(time.Minute)
	rec := f.do(t, http.MethodPost, "/v1/turns", engine.TurnRequest{Query: "Shall we go to the beach?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[turnResponse](t, rec)
	assert.NotZero(t, got.ID)
	require.NotNil(t, got.Context)
	assert.Equal(t, rollover.StateActive, got.Context.Rollover.State)
	assert.Contains(t, got.Context.Transcript, "Maggie: Shall we go to the beach?")

	rec = f.do(t, http.MethodPost, "/v1/context", engine.TurnRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/context", engine.TurnRequest{Query: "beach"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestKnowledgeBaseCRUD(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/v1/kb/entries", knowledgebase.CreateRequest{
		Title:   "Beach house",
		Content: "Maggie's family has a beach house in Cornwall.",
		Tags:    []string{"beach"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[knowledgebase.Entry](t, rec)
	assert.True(t, strings.HasPrefix(created.ID, knowledgebase.EntryIDPrefix))

	rec = f.do(t, http.MethodPost, "/v1/kb/entries", knowledgebase.CreateRequest{Title: "Beach house", Content: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/kb/entries/"+url.PathEscape("Beach house"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeBody[knowledgebase.Entry](t, rec).ID)

	rec = f.do(t, http.MethodPatch, "/v1/kb/entries/"+created.ID, knowledgebase.EditRequest{AppendContent: "It has a red door."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[knowledgebase.Entry](t, rec).TextContent, "red door")

	rec = f.do(t, http.MethodPatch, "/v1/kb/entries/"+created.ID, knowledgebase.EditRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/kb/search?q=beach", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]knowledgebase.Entry](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/v1/kb/context", kbContextRequest{Window: "we should visit the beach"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[knowledgebase.Result](t, rec)
	require.Len(t, res.Selected, 1)
	assert.Equal(t, "Beach house", res.Selected[0].Entry.DisplayName)

	rec = f.do(t, http.MethodDelete, "/v1/kb/entries/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/kb/entries/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKnowledgeBaseCategories(t *testing.T) {
	f := newTestAPI(t)

	order := 2
	rec := f.do(t, http.MethodPost, "/v1/kb/categories", categoryRequest{Name: "People", OrderIndex: &order})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	people := decodeBody[knowledgebase.Category](t, rec)
	assert.Equal(t, 2, people.OrderIndex)

	rec = f.do(t, http.MethodPost, "/v1/kb/categories", categoryRequest{Name: "Places"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/kb/categories", categoryRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/kb/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decodeBody[[]knowledgebase.Category](t, rec)
	require.Len(t, cats, 2)
	assert.Equal(t, "Places", cats[0].Name)

	rec = f.do(t, http.MethodPost, "/v1/kb/entries", knowledgebase.CreateRequest{
		Title: "Maggie", Content: "Maggie likes the sea.", CategoryID: people.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/v1/kb/entries", knowledgebase.CreateRequest{
		Title: "Diary", Content: "Secret.", CategoryID: people.ID, Tags: []string{knowledgebase.PrivateKey},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/kb/categories/"+people.ID+"/entries?hide_private=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]knowledgebase.LabeledEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "Maggie", entries[0].Name)

	rec = f.do(t, http.MethodGet, "/v1/kb/categories/kbc-missing/entries", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVectors(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/v1/vectors/notes", vectorRequest{Text: "buy flowers", ID: "42"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[vectorResult](t, rec).OK)

	rec = f.do(t, http.MethodPost, "/v1/vectors/notes", vectorRequest{Text: "buy flowers", ID: "forty-two"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/vectors/notes/search?q="+url.QueryEscape("buy flowers")+"&k=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[vectorSearchResponse](t, rec)
	require.Len(t, got.Hits, 1)
	assert.Equal(t, int64(42), got.Hits[0].ID)
	assert.Equal(t, 1, got.Size)

	rec = f.do(t, http.MethodDelete, "/v1/vectors/notes/42", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/v1/vectors/notes/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndCorrelation(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(httpmiddleware.CorrelationHeader))
}

func TestEvents_BroadcastsRollover(t *testing.T) {
	f := newTestAPI(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	f.say(t, "Maggie", "I love the beach")
	f.clock = f.clock.Add(2 * time.Hour)
	rec := f.do(t, http.MethodPost, "/v1/rollover/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[rollover.Decision](t, rec).Archived)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev rollover.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, rollover.EventRollover, ev.Type)
	assert.Equal(t, rollover.ReasonIdle, ev.Reason)
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := NewHub(nil, []string{"*"})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	// publishing with nobody attached is a no-op
	hub.Publish(rollover.Event{Type: rollover.EventRollover})
}
