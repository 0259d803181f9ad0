// Package main hosts the leadscout entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, lead CRUD, the pipeline summary and discovery job
//     endpoints. Discovery requests are validated, filled with configured defaults, persisted through the JobStore
//     and enqueued for the worker pool.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by discovery.queue_depth and are fanned
//     out to a fixed worker pool sized by discovery.concurrency. A full queue answers 503 instead of blocking.
//   - Discovery pipeline: search providers (DuckDuckGo, Bing) are queried concurrently and merged, candidates that
//     match existing leads are skipped, and the rest are analyzed in small batches before becoming leads.
//   - Website analysis: a Colly probe fetch, optional promotion to headless Chrome, and a goquery rubric produce a
//     0-100 score, a letter grade and an opportunity level.
//   - Persistence & fanout: leads and jobs live in memory, SQLite or Postgres; page snapshots go to the configured
//     BlobStore; a lead.created event is published to Pub/Sub when a topic is set; progress events feed the store,
//     Prometheus and log sinks.
//
// Commands:
//   - leadscout serve: run the API and workers until SIGINT/SIGTERM.
//   - leadscout analyze <url>: score one website and print a report.
//   - leadscout discover --query plumbers --location "Denver, CO": run one job in the foreground.
//   - leadscout migrate: apply database migrations for the configured backend.
package main
