// Package session holds the conversation state threaded through an agent run.
//
// Invariants:
// - A session is an append-only sequence of messages.
// - Every tool message answers a call of the most recent assistant message.
// - The step budget only decreases, once per model invocation.
// - A session is owned by one run; concurrent runs work on clones.
//
// Usage:
//
//	sess, _ := session.FromHistory(5, []session.Message{
//		session.User("How much did I spend on taxis in March 2024?"),
//	})
//	sess.EnsureSystem("You are a financial assistant.")
//	other := sess.Clone()
//	_ = other
package session
