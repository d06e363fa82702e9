package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/finagent/internal/config"
	"github.com/harun/finagent/pkg/agent"
	"github.com/harun/finagent/pkg/categorize"
	"github.com/harun/finagent/pkg/consensus"
	"github.com/harun/finagent/pkg/index"
	"github.com/harun/finagent/pkg/ingest"
	"github.com/harun/finagent/pkg/session"
	"github.com/harun/finagent/pkg/toolexecutor"
	"github.com/harun/finagent/pkg/tools"
	"github.com/harun/finagent/pkg/transactions"
)

// Answer is the outcome of RunAgent. Answered=false means the agent had no
// confident answer, which is not a failure.
type Answer struct {
	Text     string            `json:"answer"`
	Answered bool              `json:"answered"`
	Outcome  consensus.Outcome `json:"outcome"`
}

// Option overrides a dependency built from configuration
type Option func(*options)

type options struct {
	provider agent.LLMProvider
	embedder index.Embedder
	now      func() time.Time
	logger   *zerolog.Logger
}

// WithProvider replaces the configured completion provider
func WithProvider(p agent.LLMProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithEmbedder replaces the configured embedding provider
func WithEmbedder(e index.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithClock fixes the time used to resolve relative dates in search queries
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the base logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// Service exposes the two user-facing operations, answering questions
// about transactions and classifying a single transaction, plus the ingest
// pipeline that feeds them.
type Service struct {
	cfg        *config.Config
	store      *transactions.Store
	index      *index.Index
	registry   *toolexecutor.Registry
	loop       *agent.Loop
	engine     *consensus.Engine
	classifier *categorize.Classifier
	pipeline   *ingest.Pipeline
	logger     zerolog.Logger
}

// Open builds a service from configuration. The database file and its
// directory are created when missing.
func Open(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = agent.NewProvider(agent.ProviderConfig{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create provider: %w", err)
		}
	}

	embedder := o.embedder
	if embedder == nil {
		var err error
		embedder, err = newEmbedder(cfg)
		if err != nil {
			return nil, err
		}
	}

	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := transactions.Open(transactions.Config{DBPath: cfg.Storage.DBPath, Logger: logger})
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(index.Config{DB: store.DB(), Embedder: embedder, Logger: logger})
	if err != nil {
		store.Close()
		return nil, err
	}

	s, err := build(cfg, provider, store, idx, o.now, logger)
	if err != nil {
		idx.Close()
		store.Close()
		return nil, err
	}
	return s, nil
}

func build(cfg *config.Config, provider agent.LLMProvider, store *transactions.Store, idx *index.Index, now func() time.Time, logger zerolog.Logger) (*Service, error) {
	registry := toolexecutor.New(
		toolexecutor.WithTimeout(cfg.Agent.ToolTimeout),
		toolexecutor.WithLogger(logger),
	)
	search := tools.NewSearchTool(tools.SearchConfig{
		Index:     idx,
		Store:     store,
		TopK:      cfg.Search.TopK,
		Threshold: cfg.Search.DistanceThreshold,
		Now:       now,
		Logger:    logger,
	})
	if err := tools.Register(registry, search); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	registry.Seal()

	prompt := cfg.Agent.SystemPrompt
	if prompt == "" {
		prompt = agent.DefaultSystemPrompt
	}

	loop, err := agent.NewLoop(agent.Config{
		Provider:     provider,
		Tools:        registry,
		SystemPrompt: prompt,
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		MaxSteps:     cfg.Agent.MaxSteps,
		RunTimeout:   cfg.Agent.RunTimeout,
		Logger:       &logger,
	})
	if err != nil {
		return nil, err
	}

	engine, err := consensus.New(consensus.Config{
		Runner:      loop,
		Parallelism: cfg.Agent.Parallelism,
		Logger:      &logger,
	})
	if err != nil {
		return nil, err
	}

	classifier, err := categorize.New(categorize.Config{
		Provider:    provider,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Concurrency: cfg.Ingest.Concurrency,
		Logger:      &logger,
	})
	if err != nil {
		return nil, err
	}

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Store:      store,
		Index:      idx,
		Classifier: classifier,
		DateLayout: cfg.Ingest.DateLayout,
		Logger:     &logger,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:        cfg,
		store:      store,
		index:      idx,
		registry:   registry,
		loop:       loop,
		engine:     engine,
		classifier: classifier,
		pipeline:   pipeline,
		logger:     logger.With().Str("component", "assistant").Logger(),
	}, nil
}

func newEmbedder(cfg *config.Config) (index.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "hash":
		return index.NewHashEmbedder(cfg.Embedding.Dimension), nil
	case "openai", "":
		key := cfg.EmbeddingKey()
		if key == "" {
			return nil, errors.New("embedding API key is required")
		}
		var opts []option.RequestOption
		if cfg.Embedding.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Embedding.BaseURL))
		}
		return index.NewOpenAIEmbedder(key, cfg.Embedding.Model, cfg.Embedding.Dimension, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// RunAgent answers the last user turn of history by majority vote over
// independent agent runs.
func (s *Service) RunAgent(ctx context.Context, history []session.Message) (Answer, error) {
	return s.RunAgentWith(ctx, history, s.cfg.Agent.Runs, s.cfg.Agent.MaxSteps)
}

// RunAgentWith is RunAgent with an explicit run count and step budget. A
// zero budget is valid and yields no answer.
func (s *Service) RunAgentWith(ctx context.Context, history []session.Message, runs, maxSteps int) (Answer, error) {
	if len(history) == 0 {
		return Answer{}, errors.New("conversation history is empty")
	}
	sess, err := session.FromHistory(maxSteps, history)
	if err != nil {
		return Answer{}, fmt.Errorf("invalid conversation history: %w", err)
	}

	outcome, err := s.engine.Vote(ctx, sess, runs)
	if err != nil {
		return Answer{}, err
	}

	return Answer{Text: outcome.Answer, Answered: outcome.Answered, Outcome: outcome}, nil
}

// ClassifyTransaction returns the category pair for one transaction; both
// are empty when classification failed.
func (s *Service) ClassifyTransaction(ctx context.Context, name string, createdAt time.Time, note string) (string, string) {
	c := s.classifier.Classify(ctx, name, createdAt, note)
	return c.Category, c.Subcategory
}

// Ingest loads a CSV file
func (s *Service) Ingest(ctx context.Context, path string) (ingest.Report, error) {
	return s.pipeline.IngestFile(ctx, path)
}

// Pipeline returns the ingest pipeline, for the inbox watcher
func (s *Service) Pipeline() *ingest.Pipeline {
	return s.pipeline
}

// Transactions returns the transaction store
func (s *Service) Transactions() *transactions.Store {
	return s.store
}

// Tools lists the registered tool names
func (s *Service) Tools() []string {
	return s.registry.List()
}

// Close releases the database
func (s *Service) Close() error {
	idxErr := s.index.Close()
	storeErr := s.store.Close()
	return errors.Join(idxErr, storeErr)
}
