// Package taskmesh provides a capability-routed task dispatch core for Go.
// A central dispatcher accepts typed work items, matches them against
// capability-declaring workers with a scoring function, enforces per-worker
// concurrency and timeouts, retries transient failures, and archives every
// task to an immutable history once it reaches a terminal state.
//
// Taskmesh is a library, not a service. Construct a dispatcher, register
// workers, and submit tasks as ordinary Go values:
//
//	d := dispatcher.New(dispatcher.WithMaxActive(20))
//
// # Architecture
//
// The dispatcher owns all mutable scheduler state (priority queue, active
// registry, worker registry) behind a single mutex; workers execute handlers
// on their own goroutines and deliver results back over a channel consumed
// by the dispatcher's serial loop. Read-only projections (task status,
// system status, performance report) never mutate state.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package taskmesh
