package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/agent"
	"github.com/harun/finagent/pkg/session"
)

type scriptedRun struct {
	answer string
	err    error
	delay  time.Duration
}

// indexedRunner answers according to the run index carried on the context.
type indexedRunner struct {
	script  []scriptedRun
	mu      sync.Mutex
	seen    []int
	active  int32
	maxSeen int32
	mutate  bool
}

func (r *indexedRunner) Run(ctx context.Context, sess *session.Session) (agent.Result, error) {
	n := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		old := atomic.LoadInt32(&r.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(&r.maxSeen, old, n) {
			break
		}
	}

	idx := tracing.GetRunIndex(ctx)
	r.mu.Lock()
	r.seen = append(r.seen, sess.Len())
	r.mu.Unlock()

	step := r.script[idx]
	if step.delay > 0 {
		time.Sleep(step.delay)
	}
	if r.mutate {
		_ = sess.Append(session.Assistant("run output"))
		_ = sess.Consume()
	}
	if step.err != nil {
		return agent.Result{}, step.err
	}
	if step.answer == "" {
		return agent.Result{Session: sess}, nil
	}
	return agent.Result{Answer: step.answer, Answered: true, Steps: 1, Session: sess}, nil
}

// lateCancelRunner answers every run and cancels the caller's context once
// the last run has finished.
type lateCancelRunner struct {
	total  int32
	done   int32
	cancel context.CancelFunc
}

func (r *lateCancelRunner) Run(ctx context.Context, sess *session.Session) (agent.Result, error) {
	if atomic.AddInt32(&r.done, 1) == r.total {
		r.cancel()
	}
	return agent.Result{Answer: "42", Answered: true, Steps: 1, Session: sess}, nil
}

// blockingRunner answers run 0 and waits for cancellation on every other run.
type blockingRunner struct {
	cancel context.CancelFunc
}

func (r *blockingRunner) Run(ctx context.Context, sess *session.Session) (agent.Result, error) {
	if tracing.GetRunIndex(ctx) == 0 {
		r.cancel()
		return agent.Result{Answer: "42", Answered: true, Steps: 1, Session: sess}, nil
	}
	<-ctx.Done()
	return agent.Result{}, fmt.Errorf("agent run interrupted: %w", ctx.Err())
}

func newEngine(t *testing.T, runner Runner, parallelism int) *Engine {
	logger := zerolog.Nop()
	engine, err := New(Config{Runner: runner, Parallelism: parallelism, Logger: &logger})
	require.NoError(t, err)
	return engine
}

func startSession() *session.Session {
	sess := session.New(5)
	_ = sess.Append(session.User("how much did I spend?"))
	return sess
}

func TestNew(t *testing.T) {
	t.Run("should require a runner", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("should reject negative parallelism", func(t *testing.T) {
		_, err := New(Config{Runner: &indexedRunner{}, Parallelism: -1})
		assert.Error(t, err)
	})
}

func TestVote(t *testing.T) {
	ctx := context.Background()

	t.Run("should pick the majority answer", func(t *testing.T) {
		runner := &indexedRunner{script: []scriptedRun{
			{answer: "120"}, {answer: "130"}, {answer: "120"}, {}, {answer: "120"},
		}}
		outcome, err := newEngine(t, runner, 0).Vote(ctx, startSession(), 5)
		require.NoError(t, err)

		assert.True(t, outcome.Answered)
		assert.Equal(t, "120", outcome.Answer)
		assert.Equal(t, 3, outcome.Votes)
		assert.Equal(t, 1, outcome.Abstained)
		assert.Equal(t, 0, outcome.Failed)
		assert.Equal(t, []VoteRecord{
			{Key: "120", Answer: "120", Count: 3},
			{Key: "130", Answer: "130", Count: 1},
		}, outcome.Tally)
		assert.InDelta(t, 0.6, outcome.Agreement(), 1e-9)
	})

	t.Run("should report no answer when every run abstains", func(t *testing.T) {
		runner := &indexedRunner{script: []scriptedRun{{}, {}, {}}}
		outcome, err := newEngine(t, runner, 0).Vote(ctx, startSession(), 3)
		require.NoError(t, err)

		assert.False(t, outcome.Answered)
		assert.Empty(t, outcome.Answer)
		assert.Equal(t, 3, outcome.Abstained)
		assert.Empty(t, outcome.Tally)
	})

	t.Run("should break ties by run order", func(t *testing.T) {
		// later runs finish first so completion order differs from run order
		runner := &indexedRunner{script: []scriptedRun{
			{answer: "A", delay: 40 * time.Millisecond},
			{answer: "B", delay: 30 * time.Millisecond},
			{answer: "A", delay: 20 * time.Millisecond},
			{answer: "B"},
		}}
		outcome, err := newEngine(t, runner, 0).Vote(ctx, startSession(), 4)
		require.NoError(t, err)

		assert.Equal(t, "A", outcome.Answer)
		assert.Equal(t, 2, outcome.Votes)
	})

	t.Run("should normalize case and whitespace", func(t *testing.T) {
		runner := &indexedRunner{script: []scriptedRun{
			{answer: " Coffee "}, {answer: "coffee"}, {answer: "Tea"},
		}}
		outcome, err := newEngine(t, runner, 0).Vote(ctx, startSession(), 3)
		require.NoError(t, err)

		assert.Equal(t, " Coffee ", outcome.Answer)
		assert.Equal(t, 2, outcome.Votes)
	})

	t.Run("should skip failed runs", func(t *testing.T) {
		runner := &indexedRunner{script: []scriptedRun{
			{err: errors.New("model down")}, {answer: "42"}, {err: errors.New("model down")},
		}}
		outcome, err := newEngine(t, runner, 0).Vote(ctx, startSession(), 3)
		require.NoError(t, err)

		assert.True(t, outcome.Answered)
		assert.Equal(t, "42", outcome.Answer)
		assert.Equal(t, 2, outcome.Failed)
		require.Len(t, outcome.Runs, 3)
		assert.Error(t, outcome.Runs[0].Err)
	})

	t.Run("should isolate runs from each other and from the caller", func(t *testing.T) {
		runner := &indexedRunner{mutate: true, script: []scriptedRun{
			{answer: "x"}, {answer: "x"}, {answer: "x"}, {answer: "x"},
		}}
		initial := startSession()
		_, err := newEngine(t, runner, 2).Vote(ctx, initial, 4)
		require.NoError(t, err)

		assert.Equal(t, []int{1, 1, 1, 1}, runner.seen)
		assert.Equal(t, 1, initial.Len())
		assert.Equal(t, 5, initial.Remaining())
	})

	t.Run("should bound parallelism", func(t *testing.T) {
		script := make([]scriptedRun, 6)
		for i := range script {
			script[i] = scriptedRun{answer: "same", delay: 10 * time.Millisecond}
		}
		runner := &indexedRunner{script: script}
		_, err := newEngine(t, runner, 2).Vote(ctx, startSession(), 6)
		require.NoError(t, err)

		assert.LessOrEqual(t, atomic.LoadInt32(&runner.maxSeen), int32(2))
	})

	t.Run("should reject a non-positive run count", func(t *testing.T) {
		engine := newEngine(t, &indexedRunner{}, 0)
		_, err := engine.Vote(ctx, startSession(), 0)
		assert.Error(t, err)
		_, err = engine.Vote(ctx, startSession(), -2)
		assert.Error(t, err)
	})

	t.Run("should fail when the caller cancels", func(t *testing.T) {
		runner := &indexedRunner{script: []scriptedRun{{answer: "1"}, {answer: "1"}}}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newEngine(t, runner, 1).Vote(cancelled, startSession(), 2)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("should keep a finished vote when cancelled afterwards", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		defer cancel()
		runner := &lateCancelRunner{total: 3, cancel: cancel}

		outcome, err := newEngine(t, runner, 2).Vote(cancelled, startSession(), 3)
		require.NoError(t, err)
		assert.Error(t, cancelled.Err())
		assert.True(t, outcome.Answered)
		assert.Equal(t, "42", outcome.Answer)
		assert.Equal(t, 3, outcome.Votes)
	})

	t.Run("should fail when cancellation interrupts a run", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		defer cancel()
		runner := &blockingRunner{cancel: cancel}

		outcome, err := newEngine(t, runner, 3).Vote(cancelled, startSession(), 3)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, outcome.Answered)
		assert.Len(t, outcome.Runs, 3)
	})
}

func TestTally(t *testing.T) {
	t.Run("should be empty for no reports", func(t *testing.T) {
		outcome := Tally(nil)
		assert.False(t, outcome.Answered)
		assert.Equal(t, 0.0, outcome.Agreement())
	})

	t.Run("should prefer the higher count over run order", func(t *testing.T) {
		outcome := Tally([]RunReport{
			{Index: 0, Answered: true, Answer: "a"},
			{Index: 1, Answered: true, Answer: "b"},
			{Index: 2, Answered: true, Answer: "b"},
		})
		assert.Equal(t, "b", outcome.Answer)
	})
}
