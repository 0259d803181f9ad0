// Package store defines the progress repository contract shared by the
// progress sinks and the job-progress API. Implementations live under
// internal/storage; this package must not import database drivers.
package store
