// Package consensus runs the same conversation through several independent
// agent runs and returns the majority answer.
//
// Each run receives its own deep copy of the starting session, so runs never
// observe each other's messages or budget. Votes are tallied after every run
// has finished and in run-index order, which makes tie-breaking independent
// of completion order:
//
//	engine, _ := consensus.New(consensus.Config{Runner: loop, Parallelism: 5})
//	outcome, err := engine.Vote(ctx, sess, 5)
//	if outcome.Answered {
//		fmt.Println(outcome.Answer)
//	}
package consensus
