// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that discovery workers use to report job progress. Events are
// batched on a background goroutine and fanned out to sinks such as Prometheus
// metrics, the progress repository, or structured logs.
package progress
