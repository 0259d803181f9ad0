// Package lead defines core types shared across subsystems.
package lead

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a discovery job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// DiscoveryParams captures per-job knobs requested by the client.
type DiscoveryParams struct {
	OwnerID               string            `json:"owner_id" mapstructure:"owner_id"`
	Query                 string            `json:"query" mapstructure:"query"`
	Location              string            `json:"location" mapstructure:"location"`
	MaxResults            int               `json:"max_results" mapstructure:"max_results"`
	Sources               []string          `json:"sources" mapstructure:"sources"`
	Analyze               bool              `json:"analyze" mapstructure:"analyze"`
	AnalyzeProvided       bool              `json:"-" mapstructure:"analyze_provided"`
	HeadlessAllowed       bool              `json:"headless_allowed" mapstructure:"headless_allowed"`
	HeadlessProvided      bool              `json:"-" mapstructure:"headless_provided"`
	RespectRobots         bool              `json:"respect_robots" mapstructure:"respect_robots"`
	RespectRobotsProvided bool              `json:"-" mapstructure:"respect_robots_provided"`
	EstimatedValue        int64             `json:"estimated_value" mapstructure:"estimated_value"`
	Tags                  map[string]string `json:"tags" mapstructure:"tags"`
}

// Job represents the metadata persisted for each submitted discovery request.
type Job struct {
	ID         string          `json:"id"`
	Status     JobStatus       `json:"status"`
	Submitted  time.Time       `json:"submitted_at"`
	Started    *time.Time      `json:"started_at,omitempty"`
	Finished   *time.Time      `json:"finished_at,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`
	Parameters DiscoveryParams `json:"parameters"`
	Counters   JobCounters     `json:"counters"`
}

// JobCounters tracks what happened to the candidates of one job.
type JobCounters struct {
	Found          int `json:"found"`
	Filtered       int `json:"filtered"`
	Duplicates     int `json:"duplicates"`
	Analyzed       int `json:"analyzed"`
	AnalysisFailed int `json:"analysis_failed"`
	Created        int `json:"created"`
}

// Duplicate records a candidate that matched an existing lead.
type Duplicate struct {
	Business   Business `json:"business"`
	LeadID     string   `json:"lead_id,omitempty"`
	Reason     string   `json:"reason"`
	Similarity float64  `json:"similarity"`
}

// JobOutcome lists what a finished job produced.
type JobOutcome struct {
	LeadIDs    []string    `json:"lead_ids"`
	Duplicates []Duplicate `json:"duplicates"`
}

// JobResult is returned by the API result endpoint.
type JobResult struct {
	Job        Job         `json:"job"`
	Leads      []Lead      `json:"leads"`
	Duplicates []Duplicate `json:"duplicates"`
}

// Business is a candidate found by a search provider.
type Business struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Source  string `json:"source,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchRequest asks the configured providers for candidates.
type SearchRequest struct {
	Terms    string
	Location string
	Limit    int
	// Sources restricts the providers used; empty means all.
	Sources []string
}

// SearchResult is the merged output of one multi-source search.
type SearchResult struct {
	Businesses []Business
	// Found counts raw hits before filtering and merging.
	Found    int
	Filtered int
	// BySource counts merged businesses per provider.
	BySource map[string]int
	// Failures maps provider names to their error text.
	Failures map[string]string
}

// Unscored marks a lead whose website has not been analyzed.
const Unscored = -1

// Lead is a business moving through the sales pipeline.
type Lead struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"owner_id"`
	Name           string            `json:"name"`
	Website        string            `json:"website,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Email          string            `json:"email,omitempty"`
	Address        string            `json:"address,omitempty"`
	Stage          Stage             `json:"stage"`
	Score          int               `json:"score"`
	Grade          string            `json:"grade,omitempty"`
	Analysis       *WebsiteAnalysis  `json:"analysis,omitempty"`
	EstimatedValue int64             `json:"estimated_value"`
	Notes          string            `json:"notes,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Source         string            `json:"source,omitempty"`
	DiscoveryJobID string            `json:"discovery_job_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	StageHistory   []StageChange     `json:"stage_history,omitempty"`
}

// StageChange is one entry of a lead's pipeline history.
type StageChange struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// LeadFilter narrows ListLeads results.
type LeadFilter struct {
	Stage    Stage
	Query    string
	MinScore *int
	MaxScore *int
	Limit    int
	Offset   int
}

// LeadPatch carries optional field updates; nil fields are left untouched.
type LeadPatch struct {
	Name           *string           `json:"name"`
	Website        *string           `json:"website"`
	Phone          *string           `json:"phone"`
	Email          *string           `json:"email"`
	Address        *string           `json:"address"`
	EstimatedValue *int64            `json:"estimated_value"`
	Notes          *string           `json:"notes"`
	Tags           map[string]string `json:"tags"`
}

// Apply copies the set fields of p onto l.
func (p LeadPatch) Apply(l *Lead) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Website != nil {
		l.Website = *p.Website
	}
	if p.Phone != nil {
		l.Phone = *p.Phone
	}
	if p.Email != nil {
		l.Email = *p.Email
	}
	if p.Address != nil {
		l.Address = *p.Address
	}
	if p.EstimatedValue != nil {
		l.EstimatedValue = *p.EstimatedValue
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
	if p.Tags != nil {
		l.Tags = p.Tags
	}
}

// StageSummary aggregates the pipeline for one stage.
type StageSummary struct {
	Stage Stage `json:"stage"`
	Count int   `json:"count"`
	Value int64 `json:"value"`
}

// Opportunity grades how much a business would benefit from outreach.
type Opportunity string

// Opportunity levels; a weaker website is a hotter lead.
const (
	OpportunityHot  Opportunity = "hot"
	OpportunityWarm Opportunity = "warm"
	OpportunityCold Opportunity = "cold"
)

// Check is one rubric line of a website analysis.
type Check struct {
	Name      string `json:"name" yaml:"name"`
	Passed    bool   `json:"passed" yaml:"passed"`
	Points    int    `json:"points" yaml:"points"`
	MaxPoints int    `json:"max_points" yaml:"max_points"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// WebsiteAnalysis is the scored result of analyzing one business website.
type WebsiteAnalysis struct {
	URL          string        `json:"url" yaml:"url"`
	FinalURL     string        `json:"final_url,omitempty" yaml:"final_url,omitempty"`
	StatusCode   int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Reachable    bool          `json:"reachable" yaml:"reachable"`
	Score        int           `json:"score" yaml:"score"`
	Grade        string        `json:"grade" yaml:"grade"`
	Opportunity  Opportunity   `json:"opportunity" yaml:"opportunity"`
	Checks       []Check       `json:"checks,omitempty" yaml:"checks,omitempty"`
	Title        string        `json:"title,omitempty" yaml:"title,omitempty"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Emails       []string      `json:"emails,omitempty" yaml:"emails,omitempty"`
	Phones       []string      `json:"phones,omitempty" yaml:"phones,omitempty"`
	SocialLinks  []string      `json:"social_links,omitempty" yaml:"social_links,omitempty"`
	Technologies []string      `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	LoadTime     time.Duration `json:"load_time_ns" yaml:"load_time"`
	PageBytes    int           `json:"page_bytes" yaml:"page_bytes"`
	UsedHeadless bool          `json:"used_headless" yaml:"used_headless"`
	ContentHash  string        `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	SnapshotURI  string        `json:"snapshot_uri,omitempty" yaml:"snapshot_uri,omitempty"`
	AnalyzedAt   time.Time     `json:"analyzed_at" yaml:"analyzed_at"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// AnalyzeOptions tunes one website analysis. RespectRobots overrides the
// analyzer default only when RespectRobotsProvided is set.
type AnalyzeOptions struct {
	JobID                 string
	AllowHeadless         bool
	RespectRobots         bool
	RespectRobotsProvided bool
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID                 string
	URL                   string
	UseHeadless           bool
	Headers               http.Header
	RespectRobots         bool
	RespectRobotsProvided bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	RobotsStatus RobotsStatus
	RobotsReason string
}

// RobotsStatus describes how robots.txt was resolved for a fetch.
type RobotsStatus string

// Robots resolution outcomes.
const (
	RobotsStatusUnknown       RobotsStatus = ""
	RobotsStatusIndeterminate RobotsStatus = "indeterminate"
)
