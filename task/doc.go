// Package task defines the Task entity, its lifecycle states and priorities,
// the structured execution Result, and the functional options applied at
// submission time.
package task
