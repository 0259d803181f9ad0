package lead

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueFull is returned by a Queue at capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned by a Queue after it is closed.
	ErrQueueClosed = errors.New("queue closed")
)

// LeadStore persists leads and their pipeline history.
type LeadStore interface {
	CreateLead(ctx context.Context, l Lead) error
	GetLead(ctx context.Context, ownerID, leadID string) (Lead, error)
	ListLeads(ctx context.Context, ownerID string, filter LeadFilter) ([]Lead, error)
	UpdateLead(ctx context.Context, l Lead) error
	DeleteLead(ctx context.Context, ownerID, leadID string) error
	AppendStageChange(ctx context.Context, ownerID, leadID string, change StageChange) (Lead, error)
	ListOwnerLeads(ctx context.Context, ownerID string) ([]Lead, error)
	PipelineSummary(ctx context.Context, ownerID string) ([]StageSummary, error)
}

// JobStore persists discovery job metadata and outcomes.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	RecordOutcome(ctx context.Context, jobID string, outcome JobOutcome) error
	GetOutcome(ctx context.Context, jobID string) (JobOutcome, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes lead events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for discovery jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Policy encapsulates admission control and rate limiting.
type Policy interface {
	AllowHeadless(jobID string, url string) bool
	AllowFetch(jobID string, url string) bool
}

// Searcher returns candidate businesses for a query.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
}

// Analyzer scores a business website.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string, opts AnalyzeOptions) (WebsiteAnalysis, []byte, error)
}

// Hasher computes digests for snapshot paths and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and lead IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    DiscoveryParams
	Attempt   int
	Submitted int64
}
