// Package trace is the structured event log of sidecheck.
//
// Every component logs through a Tracer carried in the context: the CLI
// installs one, the coordinator and the workers pull it back out with
// FromContext and emit spans and point events.
//
// # Usage
//
//	sidecheck check --trace=- --trace-level=detail ./myproject
//
// # Tracers
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr (text or NDJSON)
//   - RingTracer: circular buffer, dumped when a request fails
//   - MultiTracer: fans out to several tracers
//
// Worker processes trace to their stderr, which they share with the
// coordinator. Tagged labels their events with the worker's origin.
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only error events (worker lost, timeouts, faults)
//   - LevelPhase: session and request boundaries
//   - LevelDetail: per-worker events
//   - LevelDebug: everything including per-package checks
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeRequest, "check", parentID)
//	defer span.End("")
package trace
