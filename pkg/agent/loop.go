package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/finagent/internal/observability"
	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/session"
	"github.com/harun/finagent/pkg/toolexecutor"
)

// DefaultMaxSteps is the model-invocation budget of a fresh conversation
const DefaultMaxSteps = 5

// ToolInvoker runs tools on behalf of the loop. *toolexecutor.Registry
// satisfies it.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
	Definitions() []toolexecutor.ToolSpec
}

// Config wires a Loop
type Config struct {
	Provider     LLMProvider
	Tools        ToolInvoker
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	MaxSteps     int           // budget for RunConversation sessions
	RunTimeout   time.Duration // wall-clock cap per run, 0 = none
	Logger       *zerolog.Logger
}

// Loop is the tool-calling state machine. It holds no per-run state and can
// drive many sessions concurrently.
type Loop struct {
	provider     LLMProvider
	tools        ToolInvoker
	systemPrompt string
	model        string
	temperature  float64
	maxTokens    int
	maxSteps     int
	runTimeout   time.Duration
	logger       zerolog.Logger
}

// NewLoop creates a loop
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("tool invoker is required")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	return &Loop{
		provider:     cfg.Provider,
		tools:        cfg.Tools,
		systemPrompt: cfg.SystemPrompt,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxSteps:     maxSteps,
		runTimeout:   cfg.RunTimeout,
		logger:       logger.With().Str("component", "agent").Logger(),
	}, nil
}

// MaxSteps returns the budget used for new conversations
func (l *Loop) MaxSteps() int {
	return l.maxSteps
}

// RunConversation runs the loop over a fresh session built from history
func (l *Loop) RunConversation(ctx context.Context, history []session.Message) (Result, error) {
	sess, err := session.FromHistory(l.maxSteps, history)
	if err != nil {
		return Result{}, fmt.Errorf("invalid conversation history: %w", err)
	}
	return l.Run(ctx, sess)
}

// Run drives sess from ASK_MODEL to DONE. The session is mutated in place and
// returned in the result. Budget exhaustion yields Answered=false and no
// error; model failures and cancellation return an error.
func (l *Loop) Run(ctx context.Context, sess *session.Session) (Result, error) {
	if l.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.runTimeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "agent.run",
		attribute.Int("budget", sess.Remaining()),
		attribute.Int("history", sess.Len()))
	var runErr error
	defer func() { tracing.EndSpan(span, runErr) }()

	logger := tracing.LoggerFromContext(ctx, l.logger)
	start := time.Now()

	if l.systemPrompt != "" {
		sess.EnsureSystem(l.systemPrompt)
	}

	budget := sess.Remaining()
	state := StateAskModel
	result := Result{Session: sess, Transitions: []State{state}}
	answeredAt := -1

	for state != StateDone {
		next, err := l.Step(ctx, state, sess)
		result.Steps = budget - sess.Remaining()
		if err != nil {
			runErr = err
			outcome := "failed"
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				outcome = "cancelled"
			}
			observability.RecordAgentRun(outcome, time.Since(start), result.Steps)
			logger.Warn().Err(err).Int("steps", result.Steps).Msg("Agent run failed")
			return result, err
		}
		if state == StateAskModel && next == StateDone && sess.Remaining() < budget {
			answeredAt = sess.Len() - 1
		}
		result.Transitions = append(result.Transitions, next)
		state = next
	}

	if answeredAt >= 0 {
		if last, ok := sess.Last(); ok && last.Role == session.RoleAssistant && !last.HasToolCalls() {
			result.Answer = last.Content
			result.Answered = true
		}
	}

	outcome := "no_answer"
	if result.Answered {
		outcome = "answered"
	}
	observability.RecordAgentRun(outcome, time.Since(start), result.Steps)

	logger.Debug().
		Bool("answered", result.Answered).
		Int("steps", result.Steps).
		Dur("duration", time.Since(start)).
		Msg("Agent run completed")

	return result, nil
}

// Step performs exactly one transition from state and returns the next state
func (l *Loop) Step(ctx context.Context, state State, sess *session.Session) (State, error) {
	if err := ctx.Err(); err != nil {
		return state, fmt.Errorf("agent run interrupted in %s: %w", state, err)
	}

	switch state {
	case StateAskModel:
		return l.askModel(ctx, sess)
	case StateExecuteTools:
		return l.executeTools(ctx, sess)
	case StateDone:
		return StateDone, nil
	}
	return state, fmt.Errorf("unknown agent state %q", state)
}

func (l *Loop) askModel(ctx context.Context, sess *session.Session) (State, error) {
	if sess.Remaining() <= 0 {
		return StateDone, nil
	}
	if pending := sess.PendingCalls(); len(pending) > 0 {
		return StateAskModel, fmt.Errorf("cannot ask model with %d unanswered tool calls", len(pending))
	}

	request := LLMRequest{
		Model:       l.model,
		Messages:    sess.Messages(),
		Tools:       l.tools.Definitions(),
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	}

	if err := sess.Consume(); err != nil {
		return StateDone, nil
	}

	callCtx, span := tracing.StartSpan(ctx, "agent.ask_model",
		attribute.String("provider", l.provider.Provider()),
		attribute.Int("messages", len(request.Messages)))
	start := time.Now()
	response, err := l.provider.Call(callCtx, request)
	observability.RecordModelCall(l.provider.Provider(), time.Since(start), err == nil)
	tracing.EndSpan(span, err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StateAskModel, fmt.Errorf("model call interrupted: %w", ctxErr)
		}
		return StateAskModel, &ModelInvocationError{Provider: l.provider.Provider(), Err: err}
	}
	if response == nil {
		return StateAskModel, &ModelInvocationError{Provider: l.provider.Provider(), Err: errors.New("empty response")}
	}

	var msg session.Message
	if len(response.ToolCalls) > 0 {
		msg = session.AssistantWithTools(response.Content, ensureCallIDs(response.ToolCalls)...)
	} else {
		msg = session.Assistant(response.Content)
	}

	if err := sess.Append(msg); err != nil {
		return StateAskModel, &ModelInvocationError{
			Provider: l.provider.Provider(),
			Err:      fmt.Errorf("malformed response: %w", err),
		}
	}

	if msg.HasToolCalls() {
		return StateExecuteTools, nil
	}
	return StateDone, nil
}

func (l *Loop) executeTools(ctx context.Context, sess *session.Session) (State, error) {
	last, ok := sess.Last()
	if !ok || !last.HasToolCalls() {
		return StateExecuteTools, errors.New("no tool calls to execute")
	}

	logger := tracing.LoggerFromContext(ctx, l.logger)

	for _, call := range last.ToolCalls {
		if err := ctx.Err(); err != nil {
			return StateExecuteTools, fmt.Errorf("tool execution interrupted: %w", err)
		}

		output, err := l.tools.Invoke(ctx, call.Name, call.Arguments)

		var content string
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return StateExecuteTools, fmt.Errorf("tool execution interrupted: %w", ctxErr)
			}
			logger.Debug().Str("tool", call.Name).Err(err).Msg("Tool call failed, reporting to model")
			content = toolErrorContent(call.Name, err)
		} else {
			content = toolexecutor.Serialize(output)
		}

		if err := sess.Append(session.ToolResult(call.ID, content)); err != nil {
			return StateExecuteTools, fmt.Errorf("failed to record tool result: %w", err)
		}
	}

	return StateAskModel, nil
}

func toolErrorContent(name string, err error) string {
	var execErr *toolexecutor.ToolExecutionError
	switch {
	case errors.Is(err, toolexecutor.ErrToolNotFound):
		return fmt.Sprintf("Error: tool %q does not exist", name)
	case errors.As(err, &execErr):
		return fmt.Sprintf("Error: %v", execErr.Err)
	}
	return fmt.Sprintf("Error: %v", err)
}
