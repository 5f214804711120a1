// Package ccng implements the asynchronous operation core of a Cloud
// Controller: resumable jobs that drive service-broker binding operations
// (route and credential bindings) from "not started" to a terminal state.
//
// A binding create is a two-phase protocol: issue the bind call with
// accepts_incomplete=true, then poll the broker's last_operation endpoint
// until it reports success or failure. Each poll is a discrete scheduler
// invocation; the operation record survives process restarts in a durable
// store, and the total wall-clock duration is bounded by the service plan's
// maximum polling duration.
//
// # Quick Start
//
//	c, err := ccng.New(
//	    ccng.WithStore(memStore),
//	    ccng.WithConcurrency(4),
//	)
//
// Wire the subsystems with the engine package:
//
//	eng, err := engine.Build(c, engine.WithBrokerClient(osb))
//	op, err := eng.CreateBinding(ctx, operation.KindCredential, bindingGUID, params, auditHash)
//
// # Architecture
//
// Each subsystem lives in its own package: operation (the durable record),
// binding (the domain resource and broker backends), jobs (the resumable
// polling driver), worker (claim/execute/reschedule loop), clock (periodic
// maintenance), store (memory, Postgres via Bun, Redis backends).
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package ccng
