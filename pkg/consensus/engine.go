package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/finagent/internal/observability"
	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/agent"
	"github.com/harun/finagent/pkg/session"
)

// Runner executes one agent run over a session it may mutate.
// *agent.Loop satisfies it.
type Runner interface {
	Run(ctx context.Context, sess *session.Session) (agent.Result, error)
}

// VoteRecord is one distinct answer and how many runs produced it
type VoteRecord struct {
	Key    string `json:"key"`
	Answer string `json:"answer"`
	Count  int    `json:"count"`
}

// RunReport describes how a single run ended
type RunReport struct {
	Index    int           `json:"index"`
	Answer   string        `json:"answer,omitempty"`
	Answered bool          `json:"answered"`
	Steps    int           `json:"steps"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Outcome is the result of a vote. Answered is false when no run produced
// an answer, which is a valid outcome rather than an error.
type Outcome struct {
	Answer    string       `json:"answer"`
	Answered  bool         `json:"answered"`
	Votes     int          `json:"votes"`
	Tally     []VoteRecord `json:"tally"`
	Runs      []RunReport  `json:"runs"`
	Failed    int          `json:"failed"`
	Abstained int          `json:"abstained"`
}

// Agreement is the winner's share of all runs
func (o Outcome) Agreement() float64 {
	if !o.Answered || len(o.Runs) == 0 {
		return 0
	}
	return float64(o.Votes) / float64(len(o.Runs))
}

// Config wires an Engine
type Config struct {
	Runner      Runner
	Parallelism int // 0 runs every vote fully in parallel
	Logger      *zerolog.Logger
}

// Engine fans a session out to independent runs and tallies the answers
type Engine struct {
	runner      Runner
	parallelism int
	logger      zerolog.Logger
}

// New creates an engine
func New(cfg Config) (*Engine, error) {
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.Parallelism < 0 {
		return nil, fmt.Errorf("parallelism must be >= 0, got %d", cfg.Parallelism)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Engine{
		runner:      cfg.Runner,
		parallelism: cfg.Parallelism,
		logger:      logger.With().Str("component", "consensus").Logger(),
	}, nil
}

// Vote runs initial through runCount independent runs and returns the most
// common normalized answer. initial is never modified.
func (e *Engine) Vote(ctx context.Context, initial *session.Session, runCount int) (Outcome, error) {
	if runCount <= 0 {
		return Outcome{}, fmt.Errorf("run count must be positive, got %d", runCount)
	}
	if initial == nil {
		return Outcome{}, errors.New("initial session is required")
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	}
	ctx, span := tracing.StartSpan(ctx, "consensus.vote", attribute.Int("runs", runCount))
	var voteErr error
	defer func() { tracing.EndSpan(span, voteErr) }()

	logger := tracing.LoggerFromContext(ctx, e.logger)

	parallelism := e.parallelism
	if parallelism == 0 || parallelism > runCount {
		parallelism = runCount
	}

	reports := make([]RunReport, runCount)
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i := 0; i < runCount; i++ {
		sess := initial.Clone()
		wg.Add(1)
		go func(index int, sess *session.Session) {
			defer wg.Done()

			runCtx := tracing.PropagateToRun(ctx, index)
			report := RunReport{Index: index}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				report.Err = runCtx.Err()
				reports[index] = report
				return
			}
			if err := runCtx.Err(); err != nil {
				report.Err = err
				reports[index] = report
				return
			}

			start := time.Now()
			result, err := e.runner.Run(runCtx, sess)
			report.Duration = time.Since(start)
			report.Steps = result.Steps
			report.Err = err
			if err == nil && result.Answered {
				report.Answer = result.Answer
				report.Answered = true
			}
			reports[index] = report

			runLogger := tracing.LoggerFromContext(runCtx, e.logger)
			if err != nil {
				runLogger.Warn().Err(err).Msg("Consensus run failed")
			} else {
				runLogger.Debug().Bool("answered", report.Answered).Int("steps", report.Steps).Msg("Consensus run finished")
			}
		}(i, sess)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil && interrupted(reports, err) {
		voteErr = fmt.Errorf("vote interrupted: %w", err)
		return Outcome{Runs: reports}, voteErr
	}

	outcome := Tally(reports)
	observability.RecordVote(outcome.Answered, outcome.Agreement(), outcome.Failed)
	observability.RecordVoteAudit(ctx, outcome.Answered, outcome.Answer, outcome.Votes, runCount, outcome.Failed)

	logger.Info().
		Bool("answered", outcome.Answered).
		Int("votes", outcome.Votes).
		Int("runs", runCount).
		Int("failed", outcome.Failed).
		Int("abstained", outcome.Abstained).
		Msg("Consensus vote completed")

	return outcome, nil
}

// interrupted reports whether any run was cut short by the caller's context.
// A cancellation that lands after every run finished leaves the vote intact.
func interrupted(reports []RunReport, cause error) bool {
	for _, r := range reports {
		if r.Err != nil && errors.Is(r.Err, cause) {
			return true
		}
	}
	return false
}

// Tally counts answered runs in slice order. Ties go to the key that
// appeared first.
func Tally(reports []RunReport) Outcome {
	outcome := Outcome{Runs: reports, Tally: []VoteRecord{}}
	positions := make(map[string]int)

	for _, r := range reports {
		switch {
		case r.Err != nil:
			outcome.Failed++
			continue
		case !r.Answered:
			outcome.Abstained++
			continue
		}

		key := NormalizeAnswer(r.Answer)
		if pos, ok := positions[key]; ok {
			outcome.Tally[pos].Count++
			continue
		}
		positions[key] = len(outcome.Tally)
		outcome.Tally = append(outcome.Tally, VoteRecord{Key: key, Answer: r.Answer, Count: 1})
	}

	best := -1
	for i, rec := range outcome.Tally {
		if best < 0 || rec.Count > outcome.Tally[best].Count {
			best = i
		}
	}
	if best >= 0 {
		outcome.Answer = outcome.Tally[best].Answer
		outcome.Answered = true
		outcome.Votes = outcome.Tally[best].Count
	}

	return outcome
}

// NormalizeAnswer is the equivalence key used when counting votes
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
