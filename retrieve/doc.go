// Package retrieve executes range plans against a Transport.
//
// A Plan maps each path to the blocks chosen by a parts.Strategy. Execute
// fetches them with a worker pool private to the call, sized
// min(MaxThreads, requests), and joins all workers before returning. Every
// block succeeds or fails on its own, so a Result stays usable for the
// records whose blocks arrived:
//
//	plan, err := retrieve.NewPlan(paths, byPath, parts.MustParse("auto"))
//	res, err := retrieve.NewExecutor(transport).Execute(ctx, plan)
//	data, err := res.Record(path, part)
//
// Decoding record bytes is left to the caller.
package retrieve
