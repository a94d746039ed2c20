// Package queue provides the dispatcher's priority queue and an optional
// per-task-type limiter for rate and concurrency control.
//
// The Queue orders tasks by priority (urgent > high > normal > low), then by
// submission time within equal priority. It is not safe for concurrent use:
// the dispatcher owns it and serializes access behind its own mutex.
//
// The Limiter is safe for concurrent use and follows an Acquire/Release
// protocol around task execution.
package queue
