// Package cron schedules recurring task submissions. A Scheduler holds
// named entries, each carrying a cron expression and a task template;
// a tick loop fires due entries by handing the template back to the
// dispatcher through a submit callback.
//
// Expressions use standard 5-field cron syntax plus descriptors like
// "@every 30s" and "@hourly".
package cron
