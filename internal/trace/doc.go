// Package trace records spans and point events for the meshc runtime.
//
// Binding, initialization and invocation of compiled functions are traced
// as passes; each path index, temporary and harness image is traced as a
// module-scope span inside them.
//
//	meshc run --trace=- --trace-level=detail chain.toml
//
// Implementations:
//
//   - Nop: no-op tracer used when tracing is off
//   - StreamTracer: immediate write to a file or stderr (text or NDJSON)
//   - RingTracer: circular buffer, dumped on failure
//   - MultiTracer: fan-out to several tracers
//
// Tracers travel through the call graph in a context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopePass, "init")
//	defer span.End("")
package trace
