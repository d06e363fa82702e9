package tools

import (
	"context"
	"strings"
	"time"

	"github.com/harun/finagent/internal/observability"
	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/index"
	"github.com/harun/finagent/pkg/toolexecutor"
	"github.com/harun/finagent/pkg/transactions"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// SearchToolName is the registered name of the search tool
const SearchToolName = "search_transactions"

const (
	DefaultTopK              = 100
	DefaultDistanceThreshold = 0.5
)

// Searcher is the retrieval capability used by the search tool
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// RecordStore resolves index ids to full records
type RecordStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]transactions.Transaction, error)
}

// TransactionView is the record shape returned to the model
type TransactionView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	CreatedAt       string  `json:"created_at"`
	TransactionType string  `json:"transaction_type"`
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory"`
}

// NewTransactionView converts a stored record
func NewTransactionView(t transactions.Transaction) TransactionView {
	return TransactionView{
		ID:              t.ID,
		Name:            t.Name,
		Amount:          t.Amount,
		Currency:        t.Currency,
		CreatedAt:       t.CreatedAt.Format("2006-01-02T15:04:05"),
		TransactionType: t.TransactionType,
		Category:        t.Category,
		Subcategory:     t.Subcategory,
	}
}

// SearchConfig configures the search tool. Zero TopK and Threshold select
// the defaults; a nil Now uses time.Now.
type SearchConfig struct {
	Index     Searcher
	Store     RecordStore
	TopK      int
	Threshold float64
	Now       func() time.Time
	Logger    zerolog.Logger
}

// SearchTool runs semantic transaction search
type SearchTool struct {
	index     Searcher
	store     RecordStore
	topK      int
	threshold float64
	now       func() time.Time
	logger    zerolog.Logger
}

// NewSearchTool creates the search tool
func NewSearchTool(cfg SearchConfig) *SearchTool {
	t := &SearchTool{
		index:     cfg.Index,
		store:     cfg.Store,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if t.topK <= 0 {
		t.topK = DefaultTopK
	}
	if t.threshold <= 0 {
		t.threshold = DefaultDistanceThreshold
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Search normalizes date references, queries the index, keeps hits with
// distance <= threshold and returns their records in relevance order.
func (t *SearchTool) Search(ctx context.Context, query string) ([]TransactionView, error) {
	start := time.Now()
	normalized := NormalizeDates(strings.TrimSpace(query), t.now())

	ctx, span := tracing.StartSpan(ctx, "tools.search_transactions",
		attribute.String("query", normalized))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	logger := tracing.LoggerFromContext(ctx, t.logger)

	var hits []index.Hit
	hits, err = t.index.Search(ctx, normalized, t.topK)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Distance <= t.threshold {
			ids = append(ids, h.ID)
		}
	}
	observability.RecordSearch(time.Since(start), len(ids), len(hits)-len(ids))

	views := []TransactionView{}
	if len(ids) == 0 {
		logger.Debug().Str("query", normalized).Int("hits", len(hits)).Msg("No relevant transactions")
		return views, nil
	}

	var records []transactions.Transaction
	records, err = t.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		views = append(views, NewTransactionView(r))
	}

	logger.Debug().
		Str("query", normalized).
		Int("hits", len(hits)).
		Int("kept", len(views)).
		Msg("Transaction search completed")

	return views, nil
}

// Definition returns the tool definition for the registry
func (t *SearchTool) Definition() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        SearchToolName,
		Description: "Semantic search over the user's transactions. Dates in the query (today, last month, March 2024, 2024-03-12) are resolved to absolute dates. Returns matching transactions with name, amount, currency, created_at, transaction_type, category and subcategory.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "query", Type: "string", Description: "What to look for, e.g. 'coffee last month'", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			return t.Search(ctx, query)
		},
	}
}

// Register adds the search and calculator tools to the registry
func Register(reg *toolexecutor.Registry, search *SearchTool) error {
	if search != nil {
		if err := reg.Register(search.Definition()); err != nil {
			return err
		}
	}
	return reg.Register(CalculatorDefinition())
}
