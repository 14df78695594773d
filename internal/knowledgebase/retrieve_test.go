package knowledgebase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

func seed(t *testing.T, entries ...Entry) *FileStore {
	t.Helper()
	s := newFileStore(t)
	for _, e := range entries {
		require.NoError(t, s.PutEntry(context.Background(), e))
	}
	return s
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestPrefilter(t *testing.T) {
	window := strings.Repeat("filler ", 20) + "The Dragon WAKES"
	entries := []Entry{
		{ID: "a", Keys: []string{"dragon"}, Enabled: true},
		{ID: "b", Keys: []string{"dragon"}, Enabled: true, ForceActivation: true},
		{ID: "c", Keys: []string{"dragon"}, Enabled: false},
		{ID: "d", Keys: []string{"dragon"}, Enabled: true, Hidden: true},
		{ID: "e", Keys: []string{"filler"}, Enabled: true, SearchRange: 10},
		{ID: "f", Keys: []string{"/DRAGON/i"}, Enabled: true},
		{ID: "g", Keys: []string{"/(/", "wakes"}, Enabled: true},
		{ID: "h", Keys: []string{"griffin"}, Enabled: true},
		{ID: "i", Keys: []string{"the dragon wakes"}, Enabled: true},
		{ID: "j", Keys: []string{"/usr/bin"}, Enabled: true},
	}
	r := NewRetriever(nil, RetrieverConfig{}, testLogger(), nil)

	got := r.Prefilter(entries, window, RetrieveOptions{})
	assert.Equal(t, []string{"a", "d", "f", "g", "i"}, ids(got))

	got = r.Prefilter(entries, window, RetrieveOptions{ExcludeHidden: true})
	assert.Equal(t, []string{"a", "f", "g", "i"}, ids(got))

	got = r.Prefilter(entries, "it lives in /USR/BIN", RetrieveOptions{})
	assert.Equal(t, []string{"j"}, ids(got))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("abc", 0))
	assert.Equal(t, "abc", tail("abc", 5))
	assert.Equal(t, "bc", tail("abc", 2))
	assert.Equal(t, "éé", tail("aéé", 2))
}

func TestSelect_RanksCapsAndOrdersByPriority(t *testing.T) {
	r := NewRetriever(nil, RetrieverConfig{MaxEntries: 2}, testLogger(), nil)
	candidates := []Entry{
		{ID: "bread", TextContent: "bread baked in an oven", BudgetPriority: 1000, TokenBudget: 250},
		{ID: "close", TextContent: "the red dragon breathes fire", BudgetPriority: 100, TokenBudget: 250},
		{ID: "near", TextContent: "a dragon", BudgetPriority: 900, TokenBudget: 250},
	}

	got := r.Select(candidates, "the red dragon breathes fire")
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Entry.ID)
	assert.Equal(t, "close", got[1].Entry.ID)
	assert.Greater(t, got[1].Similarity, got[0].Similarity)
}

func TestSelect_TrimsToBudget(t *testing.T) {
	r := NewRetriever(nil, RetrieverConfig{}, testLogger(), nil)
	text := strings.TrimSpace(strings.Repeat("word ", 60))

	got := r.Select([]Entry{{ID: "x", TextContent: text, TokenBudget: 12}}, "word")
	assert.Equal(t, 12, len(strings.Fields(got[0].Content)))

	// below the floor the fallback budget applies
	got = r.Select([]Entry{{ID: "x", TextContent: text, TokenBudget: 3}}, "word")
	assert.Equal(t, 50, len(strings.Fields(got[0].Content)))
}

func TestSelect_Empty(t *testing.T) {
	r := NewRetriever(nil, RetrieverConfig{}, testLogger(), nil)
	got := r.Select(nil, "anything")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRetrieve(t *testing.T) {
	s := seed(t,
		Entry{ID: "kbe-1", DisplayName: "Dragon", TextContent: "Dragons hoard gold.", Keys: []string{"dragon"}, Enabled: true, TokenBudget: 250, BudgetPriority: 400},
		Entry{ID: "kbe-2", DisplayName: "Gold", TextContent: "Gold is heavy.", Keys: []string{"gold"}, Enabled: true, TokenBudget: 250, BudgetPriority: 500},
		Entry{ID: "kbe-3", DisplayName: "Always", TextContent: "Constant.", Enabled: true, ForceActivation: true},
	)
	m := metrics.NewMetrics(false, false, true, logger.NewNopLogger())
	r := NewRetriever(s, RetrieverConfig{}, testLogger(), m.Engine)

	res := r.Retrieve(context.Background(), "where does the dragon keep its gold", RetrieveOptions{})
	assert.Equal(t, 2, res.Candidates)
	require.Len(t, res.Selected, 2)
	assert.Equal(t, "Gold is heavy.\nDragons hoard gold.", res.Text)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var observed bool
	for _, f := range families {
		if f.GetName() == "memory_engine_kb_selected_entries" {
			observed = true
			assert.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
			assert.Equal(t, 2.0, f.GetMetric()[0].GetHistogram().GetSampleSum())
		}
	}
	assert.True(t, observed)
}

func TestRetrieve_GlobalCap(t *testing.T) {
	s := seed(t,
		Entry{ID: "kbe-1", TextContent: "one two three", Keys: []string{"x"}, Enabled: true, BudgetPriority: 2, TokenBudget: 250},
		Entry{ID: "kbe-2", TextContent: "four five six", Keys: []string{"x"}, Enabled: true, BudgetPriority: 1, TokenBudget: 250},
	)
	r := NewRetriever(s, RetrieverConfig{GlobalCap: 5, GlobalCutTo: 3}, testLogger(), nil)

	res := r.Retrieve(context.Background(), "x", RetrieveOptions{})
	assert.Equal(t, "one two three", res.Text)
	assert.Len(t, res.Selected, 2)
}

type failingStore struct{ Store }

func (failingStore) ListEntries(context.Context) ([]Entry, error) {
	return nil, errors.New("db down")
}

func TestRetrieve_StoreFailureIsEmpty(t *testing.T) {
	r := NewRetriever(failingStore{}, RetrieverConfig{}, testLogger(), nil)

	res := r.Retrieve(context.Background(), "dragon", RetrieveOptions{})
	assert.Equal(t, "", res.Text)
	assert.NotNil(t, res.Selected)
	assert.Empty(t, res.Selected)

	text, constant := r.ConstantContext(context.Background(), RetrieveOptions{})
	assert.Equal(t, "", text)
	assert.Empty(t, constant)
}

func TestConstantContext(t *testing.T) {
	s := seed(t,
		Entry{ID: "kbe-1", TextContent: "The sky is green.", Enabled: true, ForceActivation: true},
		Entry{ID: "kbe-2", TextContent: "Secret.", Enabled: true, ForceActivation: true, Hidden: true},
		Entry{ID: "kbe-3", TextContent: "Off.", Enabled: false, ForceActivation: true},
		Entry{ID: "kbe-4", TextContent: "Keyed.", Enabled: true, Keys: []string{"x"}},
	)
	r := NewRetriever(s, RetrieverConfig{}, testLogger(), nil)

	text, constant := r.ConstantContext(context.Background(), RetrieveOptions{})
	assert.Equal(t, " The sky is green. \n Secret. ", text)
	assert.Len(t, constant, 2)

	text, _ = r.ConstantContext(context.Background(), RetrieveOptions{ExcludeHidden: true})
	assert.Equal(t, " The sky is green. ", text)
}
