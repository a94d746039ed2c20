// Package health provides system-level monitoring for a taskmesh
// dispatcher: a periodic sampling monitor that logs threshold warnings,
// and a metrics extension that exports lifecycle counters via
// OpenTelemetry.
package health
