package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/finagent/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 30 * time.Second

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolSpec is the provider-facing description of a tool: its name, its
// purpose and a JSON schema for its arguments.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type registeredTool struct {
	def       ToolDefinition
	schemaDoc map[string]interface{}
	schema    *gojsonschema.Schema
}

// Registry manages and executes tools
type Registry struct {
	tools   map[string]*registeredTool
	timeout time.Duration
	sealed  bool
	logger  zerolog.Logger
	mu      sync.RWMutex
}

// Option configures a Registry
type Option func(*Registry)

// WithTimeout overrides the per-invocation timeout. Non-positive values keep
// the default.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the registry logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:   make(map[string]*registeredTool),
		timeout: DefaultTimeout,
		logger:  log.Logger.With().Str("component", "toolexecutor").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Duplicate names and invalid definitions are rejected.
func (r *Registry) Register(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	doc := generateSchemaDoc(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %s: %w", def.Name, ErrRegistrySealed)
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	r.tools[def.Name] = &registeredTool{def: def, schemaDoc: doc, schema: schema}

	r.logger.Debug().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// Seal makes the registry read-only
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get returns a tool definition by name
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return t.def, true
}

// List returns all registered tool names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the provider-facing specs, sorted by name
func (r *Registry) Definitions() []ToolSpec {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		specs = append(specs, ToolSpec{
			Name:        t.def.Name,
			Description: t.def.Description,
			Parameters:  t.schemaDoc,
		})
	}
	return specs
}

// Invoke validates the arguments and runs the named tool under the
// per-invocation timeout. Unknown names wrap ErrToolNotFound; every other
// failure is a *ToolExecutionError.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	timeout := r.timeout
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn().Str("tool", name).Msg("Tool not found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	if err := validateParameters(tool.schema, args); err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(name, 0, false)
		return nil, &ToolExecutionError{Tool: name, Err: fmt.Errorf("parameter validation failed: %w", err)}
	}

	startTime := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", p)}
			}
		}()
		result, err := tool.def.Handler(timeoutCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		duration := time.Since(startTime)
		observability.RecordToolExecution(name, duration, out.err == nil)

		if out.err != nil {
			r.logger.Error().
				Str("tool", name).
				Dur("duration", duration).
				Err(out.err).
				Msg("Tool execution failed")
			return nil, &ToolExecutionError{Tool: name, Err: out.err}
		}

		r.logger.Debug().
			Str("tool", name).
			Dur("duration", duration).
			Msg("Tool execution completed")
		return out.result, nil

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)
		observability.RecordToolExecution(name, duration, false)

		err := timeoutCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("tool execution timeout after %v: %w", timeout, err)
		}

		r.logger.Error().
			Str("tool", name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution aborted")
		return nil, &ToolExecutionError{Tool: name, Err: err}
	}
}

// validateToolDefinition validates a tool definition
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	seen := make(map[string]bool, len(def.Parameters))
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if seen[param.Name] {
			return fmt.Errorf("duplicate parameter %s", param.Name)
		}
		seen[param.Name] = true
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}

		validTypes := map[string]bool{
			"string": true, "number": true, "boolean": true,
			"object": true, "array": true, "integer": true,
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// generateSchemaDoc builds the JSON Schema document for a tool's parameters
func generateSchemaDoc(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	doc := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
