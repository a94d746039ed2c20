// Package audit bridges taskmesh lifecycle events to an audit trail
// backend. The Extension subscribes to the dispatcher's hooks and emits
// one structured audit event per lifecycle transition through a caller
// supplied Recorder.
//
// The Recorder interface is defined locally so this package does not
// depend on any particular audit store; wire a RecorderFunc adapter to
// whatever backend records your trail.
package audit
