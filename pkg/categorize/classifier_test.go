package categorize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/finagent/pkg/agent"
)

// fakeProvider answers based on the transaction name found in the prompt.
type fakeProvider struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	silent  bool
	calls   int
}

func (p *fakeProvider) Provider() string { return "fake" }

func (p *fakeProvider) Call(ctx context.Context, request agent.LLMRequest) (*agent.LLMResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	if p.silent {
		return nil, nil
	}
	prompt := request.Messages[len(request.Messages)-1].Content
	for name, answer := range p.answers {
		if strings.Contains(prompt, "name: "+name+"\n") {
			return &agent.LLMResponse{Content: answer}, nil
		}
	}
	return &agent.LLMResponse{Content: "I am not sure"}, nil
}

func newClassifier(t *testing.T, provider agent.LLMProvider) *Classifier {
	logger := zerolog.Nop()
	c, err := New(Config{Provider: provider, Model: "m", Concurrency: 2, Logger: &logger})
	require.NoError(t, err)
	return c
}

var ts = time.Date(2025, 3, 12, 14, 20, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	ctx := context.Background()

	t.Run("should classify valid output", func(t *testing.T) {
		provider := &fakeProvider{answers: map[string]string{
			"Pho 24": `{"category": "food", "subcategory": "lunch"}`,
		}}
		c := newClassifier(t, provider)

		got := c.Classify(ctx, "Pho 24", ts, "lunch with team")
		assert.Equal(t, Classification{Category: "food", Subcategory: "lunch"}, got)
	})

	t.Run("should tolerate code fences and casing", func(t *testing.T) {
		provider := &fakeProvider{answers: map[string]string{
			"Grab": "```json\n{\"category\": \"Transportation\", \"subcategory\": \" taxi \"}\n```",
		}}
		c := newClassifier(t, provider)

		got := c.Classify(ctx, "Grab", ts, "ride home")
		assert.Equal(t, Classification{Category: "transportation", Subcategory: "taxi"}, got)
	})

	t.Run("should return empty for unparsable output", func(t *testing.T) {
		c := newClassifier(t, &fakeProvider{})
		got := c.Classify(ctx, "Mystery", ts, "")
		assert.True(t, got.Empty())
	})

	t.Run("should return empty outside the taxonomy", func(t *testing.T) {
		provider := &fakeProvider{answers: map[string]string{
			"Casino": `{"category": "gambling", "subcategory": "poker"}`,
			"Pizza":  `{"category": "food", "subcategory": "fuel"}`,
		}}
		c := newClassifier(t, provider)

		assert.True(t, c.Classify(ctx, "Casino", ts, "").Empty())
		assert.True(t, c.Classify(ctx, "Pizza", ts, "").Empty())
	})

	t.Run("should return empty on model errors", func(t *testing.T) {
		c := newClassifier(t, &fakeProvider{err: errors.New("unavailable")})
		assert.True(t, c.Classify(ctx, "Anything", ts, "").Empty())
	})

	t.Run("should return empty on an empty response", func(t *testing.T) {
		c := newClassifier(t, &fakeProvider{silent: true})

		var got Classification
		assert.NotPanics(t, func() {
			got = c.Classify(ctx, "Anything", ts, "")
		})
		assert.True(t, got.Empty())

		rows := []Row{{Name: "A", CreatedAt: ts}, {Name: "B", CreatedAt: ts}}
		assert.NotPanics(t, func() {
			for _, r := range c.ClassifyBatch(ctx, rows) {
				assert.True(t, r.Empty())
			}
		})
	})

	t.Run("should be stable for the same input", func(t *testing.T) {
		provider := &fakeProvider{answers: map[string]string{
			"Netflix": `{"category": "personal", "subcategory": "entertainment"}`,
		}}
		c := newClassifier(t, provider)

		first := c.Classify(ctx, "Netflix", ts, "monthly")
		second := c.Classify(ctx, "Netflix", ts, "monthly")
		assert.Equal(t, first, second)
	})
}

func TestParse(t *testing.T) {
	c := newClassifier(t, &fakeProvider{})

	t.Run("should require both fields", func(t *testing.T) {
		_, err := c.Parse(`{"category": "food"}`)
		assert.Error(t, err)
	})

	t.Run("should reject non-string fields", func(t *testing.T) {
		_, err := c.Parse(`{"category": 1, "subcategory": "lunch"}`)
		assert.Error(t, err)
	})

	t.Run("should accept every taxonomy pair", func(t *testing.T) {
		for category, subs := range Taxonomy {
			for _, sub := range subs {
				got, err := c.Parse(`{"category": "` + category + `", "subcategory": "` + sub + `"}`)
				require.NoError(t, err, "%s/%s", category, sub)
				assert.Equal(t, Classification{Category: category, Subcategory: sub}, got)
			}
		}
	})

	t.Run("should mark taxonomy mismatches", func(t *testing.T) {
		_, err := c.Parse(`{"category": "salary", "subcategory": "lunch"}`)
		assert.ErrorIs(t, err, errOutside)
	})

	t.Run("should mark garbage as unparsable", func(t *testing.T) {
		_, err := c.Parse("category: food")
		assert.ErrorIs(t, err, errUnparsable)
	})
}

func TestClassifyBatch(t *testing.T) {
	provider := &fakeProvider{answers: map[string]string{
		"Shell":    `{"category": "transportation", "subcategory": "fuel"}`,
		"Payroll":  `{"category": "salary", "subcategory": "base salary"}`,
		"Pharmacy": `{"category": "health", "subcategory": "medicine"}`,
	}}
	c := newClassifier(t, provider)

	rows := []Row{
		{Name: "Shell", CreatedAt: ts},
		{Name: "Unknown shop", CreatedAt: ts},
		{Name: "Payroll", CreatedAt: ts},
		{Name: "Pharmacy", CreatedAt: ts},
	}

	got := c.ClassifyBatch(context.Background(), rows)
	require.Len(t, got, 4)
	assert.Equal(t, "fuel", got[0].Subcategory)
	assert.True(t, got[1].Empty())
	assert.Equal(t, "salary", got[2].Category)
	assert.Equal(t, "health", got[3].Category)
	assert.Equal(t, 4, provider.calls)
}

func TestTaxonomy(t *testing.T) {
	assert.Len(t, Taxonomy, 8)
	assert.True(t, Valid("household", "utilities"))
	assert.False(t, Valid("household", "lunch"))
	assert.False(t, Valid("", ""))
	assert.Equal(t, "education", Categories()[0])
}
