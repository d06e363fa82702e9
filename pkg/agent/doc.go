// Package agent runs one tool-calling conversation against a language model
// as an explicit state machine.
//
// Invariants:
// - The loop moves between ASK_MODEL and EXECUTE_TOOLS until DONE.
// - Each model invocation consumes exactly one unit of the session budget.
// - Tool failures become tool messages; model failures end the run.
// - Tool calls route through the ToolInvoker only.
//
// Usage:
//
//	loop, _ := agent.NewLoop(agent.Config{
//		Provider: provider,
//		Tools:    registry,
//		Model:    "gpt-4o-mini",
//		MaxSteps: 5,
//	})
//	result, err := loop.RunConversation(ctx, []session.Message{session.User("How much did I spend on food last month?")})
package agent
