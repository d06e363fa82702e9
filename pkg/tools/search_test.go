package tools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/finagent/pkg/index"
	"github.com/harun/finagent/pkg/toolexecutor"
	"github.com/harun/finagent/pkg/transactions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	hits      []index.Hit
	err       error
	lastQuery string
	lastK     int
}

func (f *fakeIndex) Search(ctx context.Context, query string, k int) ([]index.Hit, error) {
	f.lastQuery = query
	f.lastK = k
	return f.hits, f.err
}

type fakeStore struct {
	records map[string]transactions.Transaction
	asked   []string
}

func (f *fakeStore) GetByIDs(ctx context.Context, ids []string) ([]transactions.Transaction, error) {
	f.asked = ids
	out := []transactions.Transaction{}
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func record(id, name string) transactions.Transaction {
	return transactions.Transaction{
		ID:              id,
		Name:            name,
		Amount:          10,
		Currency:        "$",
		CreatedAt:       time.Date(2025, 3, 12, 14, 20, 0, 0, time.UTC),
		TransactionType: transactions.TypeExpense,
		Category:        "food",
		Subcategory:     "lunch",
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 12, 14, 20, 0, 0, time.UTC)
}

func TestSearchThresholdFilter(t *testing.T) {
	idx := &fakeIndex{hits: []index.Hit{{ID: "rec1", Distance: 0.1}, {ID: "rec2", Distance: 0.4}}}
	store := &fakeStore{records: map[string]transactions.Transaction{
		"rec1": record("rec1", "Pho 24"),
		"rec2": record("rec2", "Grab"),
	}}

	tool := NewSearchTool(SearchConfig{Index: idx, Store: store, Threshold: 0.25, Now: fixedNow, Logger: zerolog.Nop()})

	views, err := tool.Search(context.Background(), "lunch")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "rec1", views[0].ID)
	assert.Equal(t, []string{"rec1"}, store.asked)
}

func TestSearchKeepsBoundaryAndOrder(t *testing.T) {
	idx := &fakeIndex{hits: []index.Hit{
		{ID: "b", Distance: 0.2},
		{ID: "missing", Distance: 0.3},
		{ID: "a", Distance: 0.5},
		{ID: "c", Distance: 0.51},
	}}
	store := &fakeStore{records: map[string]transactions.Transaction{
		"a": record("a", "A"),
		"b": record("b", "B"),
		"c": record("c", "C"),
	}}

	tool := NewSearchTool(SearchConfig{Index: idx, Store: store, Now: fixedNow, Logger: zerolog.Nop()})

	views, err := tool.Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "b", views[0].ID)
	assert.Equal(t, "a", views[1].ID, "distance equal to the default threshold is kept")
	assert.Equal(t, DefaultTopK, idx.lastK)
	assert.Equal(t, "2025-03-12T14:20:00", views[0].CreatedAt)
}

func TestSearchNothingMatches(t *testing.T) {
	idx := &fakeIndex{hits: []index.Hit{{ID: "x", Distance: 0.9}}}
	store := &fakeStore{}

	tool := NewSearchTool(SearchConfig{Index: idx, Store: store, Now: fixedNow, Logger: zerolog.Nop()})

	views, err := tool.Search(context.Background(), "caviar")
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
	assert.Nil(t, store.asked, "store not queried")
}

func TestSearchNormalizesDates(t *testing.T) {
	idx := &fakeIndex{}
	tool := NewSearchTool(SearchConfig{Index: idx, Store: &fakeStore{}, TopK: 7, Now: fixedNow, Logger: zerolog.Nop()})

	_, err := tool.Search(context.Background(), "  coffee yesterday ")
	require.NoError(t, err)
	assert.Equal(t, "coffee 2025-03-11", idx.lastQuery)
	assert.Equal(t, 7, idx.lastK)
}

func TestSearchIndexError(t *testing.T) {
	idx := &fakeIndex{err: errors.New("index offline")}
	tool := NewSearchTool(SearchConfig{Index: idx, Store: &fakeStore{}, Now: fixedNow, Logger: zerolog.Nop()})

	_, err := tool.Search(context.Background(), "x")
	assert.Error(t, err)
}

func TestRegisterTools(t *testing.T) {
	reg := toolexecutor.New()
	tool := NewSearchTool(SearchConfig{Index: &fakeIndex{}, Store: &fakeStore{}, Now: fixedNow, Logger: zerolog.Nop()})

	require.NoError(t, Register(reg, tool))
	assert.Equal(t, []string{CalculatorToolName, SearchToolName}, reg.List())

	out, err := reg.Invoke(context.Background(), SearchToolName, map[string]interface{}{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, "[]", toolexecutor.Serialize(out))
}

func TestSearchEndToEnd(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "finagent.db")

	store, err := transactions.Open(transactions.Config{DBPath: dbPath, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer store.Close()

	idx, err := index.Open(index.Config{DB: store.DB(), Embedder: index.NewHashEmbedder(256), Logger: zerolog.Nop()})
	require.NoError(t, err)

	coffee := record("", "Highlands Coffee")
	fuel := record("", "Petrolimex")
	require.NoError(t, store.CreateBatch(ctx, []*transactions.Transaction{&coffee, &fuel}))
	require.NoError(t, idx.Add(ctx, []index.Document{
		{ID: coffee.ID, Content: "Highlands Coffee. Note: coffee. Subcategory: breakfast. Category: food"},
		{ID: fuel.ID, Content: "Petrolimex. Note: fuel. Subcategory: fuel. Category: transportation"},
	}))

	tool := NewSearchTool(SearchConfig{Index: idx, Store: store, Threshold: 0.6, Now: fixedNow, Logger: zerolog.Nop()})

	views, err := tool.Search(ctx, "Highlands Coffee. Note: coffee. Subcategory: breakfast. Category: food")
	require.NoError(t, err)
	require.NotEmpty(t, views)
	assert.Equal(t, coffee.ID, views[0].ID)
}
