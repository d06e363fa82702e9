// Package toolexecutor holds the set of tools an agent may call and runs
// them on its behalf.
//
// Invariants:
// - Tool names are unique.
// - Arguments are schema-validated before the handler runs.
// - Once sealed the registry is read-only and safe for concurrent Invoke.
//
// Usage:
//
//	reg := toolexecutor.New()
//	_ = reg.Register(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	reg.Seal()
//	out, err := reg.Invoke(ctx, "echo", map[string]interface{}{"text": "hi"})
package toolexecutor
