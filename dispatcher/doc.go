// Package dispatcher implements the capability-routed dispatch core. A
// Dispatcher owns the priority queue, the active-task registry and the
// worker registry; a periodic drain tick assigns queued tasks to the
// best-scoring capable worker under global and per-worker capacity, and
// results flow back over a channel consumed by the same serial loop.
//
// Tasks reach exactly one terminal status (completed, failed or
// cancelled) and are archived to history the moment they do; the queue
// and the active registry never hold terminal tasks.
package dispatcher
