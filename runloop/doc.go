// Package runloop implements the orchestration strategies that drive a
// model to complete a task: plan-execute with continuous plan review,
// supervisor-worker delegation, an inline code-acting loop, and an
// evolutionary candidate loop.
//
// All strategies share one contract: the caller supplies an Environment
// (model client, command registry, code runner, labels, logger) and a
// RunRequest, and the strategy returns a RunResult whose Output is always
// readable text. Provider and tool failures are folded into the output
// rather than propagated; only infrastructure misconfiguration surfaces as
// an error.
//
// Streaming, cancellation, and checkpointing flow through the Bridge: the
// host observes step boundaries, receives text deltas, persists segment
// checkpoints, and can request a cooperative stop that the strategies honor
// between suspension points.
//
//	env := runloop.Environment{Client: client, Tools: registry}
//	strategy, _ := runloop.DefaultRegistry().Get("plan-execute")
//	result, err := strategy.Run(ctx, env, runloop.RunRequest{
//		Task:   "summarize the quarterly report",
//		Params: runloop.Params{Model: "gpt-4o-mini"},
//	})
package runloop
