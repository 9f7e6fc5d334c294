// Package operations sequences the analysis checks of one website run.
//
// Orchestrator drives every analysis.Runner in analysis.Sequence order, one
// at a time, and records a per-kind status that moves through an explicit
// state machine:
//
//	pending -> running -> success
//	                   -> error
//
// A failed kind never stops the run. Readers get deep copies of the state
// through State, and every transition is pushed to connected clients by the
// StatusBroadcaster. Finished runs are kept in a bounded RunStore.
//
// Example usage:
//
//	orch, err := operations.NewOrchestrator(suite.Runners(),
//		operations.WithBroadcaster(broadcaster),
//		operations.WithRunStore(operations.NewMemoryRunStore(50)),
//	)
//	if err != nil {
//		return err
//	}
//	if err := orch.StartAnalysis(ctx, "https://www.example.com"); err != nil {
//		return err
//	}
//	stats := orch.GetStats()
package operations
