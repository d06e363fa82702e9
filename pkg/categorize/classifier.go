package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/finagent/internal/observability"
	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/agent"
	"github.com/harun/finagent/pkg/session"
)

const (
	DefaultConcurrency = 4

	systemPrompt = "You are a helpful assistant that classifies financial transactions."

	promptTemplate = `You are a financial transaction categorization assistant.

Classify the transaction into a main category and a subcategory based on its name, created_at and transfer_note.
Only use the following categories and subcategories:

%s
Return the result as a valid JSON object with two fields: "category" and "subcategory".
Do not include any explanation or extra text.

Example output:
{"category": "food", "subcategory": "lunch"}

Transaction details:
name: %s
created_at: %s
transfer_note: %s
`
)

var (
	errUnparsable = errors.New("unparsable classification")
	errOutside    = errors.New("classification outside taxonomy")
)

// Classification is a (category, subcategory) pair. Both fields are empty
// when the transaction could not be classified.
type Classification struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// Empty reports whether classification failed
func (c Classification) Empty() bool {
	return c.Category == "" && c.Subcategory == ""
}

// Row is one transaction awaiting classification
type Row struct {
	Name      string
	CreatedAt time.Time
	Note      string
}

// Config wires a Classifier
type Config struct {
	Provider    agent.LLMProvider
	Model       string
	MaxTokens   int
	Concurrency int
	Logger      *zerolog.Logger
}

// Classifier assigns taxonomy pairs with one model call per transaction
type Classifier struct {
	provider    agent.LLMProvider
	model       string
	maxTokens   int
	concurrency int
	schema      *gojsonschema.Schema
	logger      zerolog.Logger
}

// New creates a classifier
func New(cfg Config) (*Classifier, error) {
	if cfg.Provider == nil {
		return nil, errors.New("provider is required")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(taxonomySchema()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile taxonomy schema: %w", err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Classifier{
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		concurrency: concurrency,
		schema:      schema,
		logger:      logger.With().Str("component", "categorize").Logger(),
	}, nil
}

// Classify returns the taxonomy pair for one transaction. Every failure is
// logged and yields an empty Classification; it never returns an error.
func (c *Classifier) Classify(ctx context.Context, name string, createdAt time.Time, note string) Classification {
	logger := tracing.LoggerFromContext(ctx, c.logger).With().Str("name", name).Logger()

	request := agent.LLMRequest{
		Model: c.model,
		Messages: []session.Message{
			session.System(systemPrompt),
			session.User(fmt.Sprintf(promptTemplate, describeTaxonomy(), name, createdAt.Format("01/02/2006 15:04:05"), note)),
		},
		MaxTokens: c.maxTokens,
	}

	start := time.Now()
	response, err := c.provider.Call(ctx, request)
	observability.RecordModelCall(c.provider.Provider(), time.Since(start), err == nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Classification model call failed")
		observability.RecordClassification("model_error")
		return Classification{}
	}
	if response == nil {
		logger.Warn().Msg("Classification model returned no response")
		observability.RecordClassification("model_error")
		return Classification{}
	}

	result, err := c.Parse(response.Content)
	if err != nil {
		logger.Warn().Err(err).Str("output", response.Content).Msg("Discarding classification")
		if errors.Is(err, errOutside) {
			observability.RecordClassification("outside_taxonomy")
		} else {
			observability.RecordClassification("parse_error")
		}
		return Classification{}
	}

	observability.RecordClassification("classified")
	return result
}

// Parse decodes raw model output into a classification and checks it
// against the taxonomy. Markdown code fences around the JSON are tolerated.
func (c *Classifier) Parse(raw string) (Classification, error) {
	text := stripCodeFence(raw)

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", errUnparsable, err)
	}

	for _, key := range []string{"category", "subcategory"} {
		if s, ok := doc[key].(string); ok {
			doc[key] = strings.ToLower(strings.TrimSpace(s))
		}
	}

	result, err := c.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", errUnparsable, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Classification{}, fmt.Errorf("%w: %s", errOutside, strings.Join(msgs, "; "))
	}

	category, _ := doc["category"].(string)
	subcategory, _ := doc["subcategory"].(string)
	return Classification{Category: category, Subcategory: subcategory}, nil
}

// ClassifyBatch classifies rows independently with bounded concurrency.
// Results are in input order; a failed row leaves an empty Classification.
func (c *Classifier) ClassifyBatch(ctx context.Context, rows []Row) []Classification {
	results := make([]Classification, len(rows))
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for i, row := range rows {
		wg.Add(1)
		go func(index int, row Row) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			results[index] = c.Classify(ctx, row.Name, row.CreatedAt, row.Note)
		}(i, row)
	}

	wg.Wait()
	return results
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag line
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
