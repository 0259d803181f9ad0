// Package discovery turns a search query into new, scored, deduplicated
// leads for one owner.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/clock/system"
	"github.com/JakeFAU/leadscout/internal/dedup"
	"github.com/JakeFAU/leadscout/internal/discovery/batch"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/progress"
)

// EventLeadCreated is the event type published for every new lead.
const EventLeadCreated = "lead.created"

// Limiter paces requests per website.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls a Pipeline.
type Config struct {
	BatchSize      int
	SnapshotPrefix string
	ContentType    string
	// Topic receives lead.created events; empty disables publishing.
	Topic string
}

// Deps are the collaborators a Pipeline needs. Blobs, Publisher, Limiter,
// Policy and Progress are optional.
type Deps struct {
	Searcher  lead.Searcher
	Analyzer  lead.Analyzer
	Leads     lead.LeadStore
	Jobs      lead.JobStore
	Blobs     lead.BlobStore
	Publisher lead.Publisher
	Hasher    lead.Hasher
	IDs       lead.IDGenerator
	Clock     lead.Clock
	Matcher   *dedup.Matcher
	Limiter   Limiter
	Policy    lead.Policy
	Progress  progress.Emitter
}

// Pipeline runs discovery jobs.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// Report is what one run produced.
type Report struct {
	Counters lead.JobCounters
	Outcome  lead.JobOutcome
	// Canceled is set when the run stopped early.
	Canceled bool
}

// LeadCreatedEvent is the payload published for a new lead.
type LeadCreatedEvent struct {
	Type        string           `json:"type"`
	LeadID      string           `json:"lead_id"`
	OwnerID     string           `json:"owner_id"`
	JobID       string           `json:"job_id"`
	Name        string           `json:"name"`
	Website     string           `json:"website,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Email       string           `json:"email,omitempty"`
	Score       int              `json:"score"`
	Grade       string           `json:"grade,omitempty"`
	Opportunity lead.Opportunity `json:"opportunity,omitempty"`
	Source      string           `json:"source,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// New builds a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Matcher == nil {
		deps.Matcher = dedup.NewMatcher(dedup.DefaultThreshold)
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger.Named("discovery")}
}

type candidate struct {
	business lead.Business
	analysis *lead.WebsiteAnalysis
	err      error
}

// Run executes one job. It returns an error only when the job cannot
// produce anything: search failed outright or existing leads could not be
// loaded. Per-site failures are counted, not returned.
func (p *Pipeline) Run(ctx context.Context, jobID string, params lead.DiscoveryParams) (Report, error) {
	ctx, span := otel.Tracer("leadscout/discovery").Start(ctx, "discovery.run")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID), attribute.String("owner.id", params.OwnerID))

	eventID := eventJobID(jobID)
	logger := p.logger.With(zap.String("job_id", jobID))
	var rep Report

	res, err := p.deps.Searcher.Search(ctx, lead.SearchRequest{
		Terms:    params.Query,
		Location: params.Location,
		Limit:    params.MaxResults,
		Sources:  params.Sources,
	})
	rep.Counters.Found = res.Found
	rep.Counters.Filtered = res.Filtered
	for source, failure := range res.Failures {
		p.emit(progress.Event{JobID: eventID, Stage: progress.StageSearchDone, Source: source, Note: failure})
	}
	if err != nil {
		return rep, fmt.Errorf("search: %w", err)
	}
	for source, count := range res.BySource {
		p.emit(progress.Event{JobID: eventID, Stage: progress.StageSearchDone, Source: source, Results: int64(count)})
	}

	existing, err := p.deps.Leads.ListOwnerLeads(ctx, params.OwnerID)
	if err != nil {
		return rep, fmt.Errorf("load owner leads: %w", err)
	}
	unique, dups := p.deps.Matcher.Partition(res.Businesses, existing)
	rep.Counters.Duplicates = len(dups)
	rep.Outcome.Duplicates = dups
	for _, d := range dups {
		metrics.ObserveDuplicate(d.Reason)
		p.emit(progress.Event{
			JobID:  eventID,
			Stage:  progress.StageDuplicateSkipped,
			Source: d.Business.Source,
			URL:    d.Business.Website,
			Note:   d.Reason,
		})
	}
	logger.Info("search complete",
		zap.Int("found", res.Found),
		zap.Int("filtered", res.Filtered),
		zap.Int("unique", len(unique)),
		zap.Int("duplicates", len(dups)),
	)

	for _, chunk := range batch.Chunk(unique, p.cfg.BatchSize) {
		if p.canceled(ctx, jobID) {
			rep.Canceled = true
			break
		}
		candidates := p.analyzeBatch(ctx, jobID, params, chunk)
		if ctx.Err() != nil {
			rep.Canceled = true
			break
		}
		for _, c := range candidates {
			p.recordAnalysis(eventID, c, &rep.Counters)
			if p.phoneDuplicate(eventID, c, existing, &rep) {
				continue
			}
			if created, ok := p.createLead(ctx, jobID, eventID, params, c, &rep); ok {
				existing = append(existing, created)
			}
		}
		p.checkpoint(ctx, jobID, rep.Counters)
	}

	span.SetAttributes(
		attribute.Int("job.created", rep.Counters.Created),
		attribute.Bool("job.canceled", rep.Canceled),
	)
	return rep, nil
}

func (p *Pipeline) analyzeBatch(ctx context.Context, jobID string, params lead.DiscoveryParams, chunk []lead.Business) []candidate {
	if !params.Analyze || p.deps.Analyzer == nil {
		out := make([]candidate, len(chunk))
		for i, b := range chunk {
			out[i] = candidate{business: b}
		}
		return out
	}

	results := batch.Settle(ctx, chunk, p.cfg.BatchSize, func(ctx context.Context, b lead.Business) (lead.WebsiteAnalysis, error) {
		return p.analyze(ctx, jobID, params, b)
	})
	out := make([]candidate, len(chunk))
	for i, r := range results {
		out[i] = candidate{business: chunk[i], err: r.Err}
		if r.Err == nil {
			analysis := r.Value
			out[i].analysis = &analysis
		}
	}
	return out
}

func (p *Pipeline) analyze(ctx context.Context, jobID string, params lead.DiscoveryParams, b lead.Business) (lead.WebsiteAnalysis, error) {
	if p.deps.Policy != nil && !p.deps.Policy.AllowFetch(jobID, b.Website) {
		return lead.WebsiteAnalysis{}, errors.New("fetch denied by policy")
	}
	if p.deps.Limiter != nil {
		if err := p.deps.Limiter.Wait(ctx, b.Website); err != nil {
			return lead.WebsiteAnalysis{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	allowHeadless := params.HeadlessAllowed
	if allowHeadless && p.deps.Policy != nil {
		allowHeadless = p.deps.Policy.AllowHeadless(jobID, b.Website)
	}
	analysis, body, err := p.deps.Analyzer.Analyze(ctx, b.Website, lead.AnalyzeOptions{
		JobID:                 jobID,
		AllowHeadless:         allowHeadless,
		RespectRobots:         params.RespectRobots,
		RespectRobotsProvided: params.RespectRobotsProvided,
	})
	if err != nil {
		return lead.WebsiteAnalysis{}, fmt.Errorf("analyze %s: %w", b.Website, err)
	}
	if len(body) > 0 {
		hash, uri, snapErr := p.snapshot(ctx, jobID, body)
		if snapErr != nil {
			p.logger.Warn("snapshot failed", zap.String("job_id", jobID), zap.String("url", b.Website), zap.Error(snapErr))
		}
		analysis.ContentHash = hash
		analysis.SnapshotURI = uri
	}
	return analysis, nil
}

// snapshot stores body under <prefix>/<job_id>/<sha256>.html.
func (p *Pipeline) snapshot(ctx context.Context, jobID string, body []byte) (string, string, error) {
	if p.deps.Hasher == nil {
		return "", "", nil
	}
	hash, err := p.deps.Hasher.Hash(body)
	if err != nil {
		return "", "", fmt.Errorf("hash body: %w", err)
	}
	if p.deps.Blobs == nil {
		return hash, "", nil
	}
	objectPath := path.Join(p.cfg.SnapshotPrefix, jobID, hash+".html")
	uri, err := p.deps.Blobs.PutObject(ctx, objectPath, p.cfg.ContentType, body)
	if err != nil {
		return hash, "", fmt.Errorf("store snapshot: %w", err)
	}
	return hash, uri, nil
}

func (p *Pipeline) recordAnalysis(eventID [16]byte, c candidate, counters *lead.JobCounters) {
	switch {
	case c.err != nil:
		counters.AnalysisFailed++
		p.emit(progress.Event{
			JobID:       eventID,
			Stage:       progress.StageAnalyzeDone,
			Source:      c.business.Source,
			URL:         c.business.Website,
			Score:       -1,
			StatusClass: progress.StatusUnreachable,
			Note:        c.err.Error(),
		})
	case c.analysis != nil:
		counters.Analyzed++
		a := c.analysis
		p.emit(progress.Event{
			JobID:       eventID,
			Stage:       progress.StageAnalyzeDone,
			Source:      c.business.Source,
			URL:         c.business.Website,
			Score:       a.Score,
			Grade:       a.Grade,
			Bytes:       int64(a.PageBytes),
			StatusClass: progress.ClassifyStatus(a.StatusCode),
			Dur:         a.LoadTime,
			Note:        a.Error,
		})
	}
}

// phoneDuplicate records c as a duplicate when a phone found on its site
// belongs to a known lead. Search results rarely carry phones, so this is
// where most phone matches happen.
func (p *Pipeline) phoneDuplicate(eventID [16]byte, c candidate, known []lead.Lead, rep *Report) bool {
	if c.analysis == nil || len(c.analysis.Phones) == 0 {
		return false
	}
	match, ok := p.deps.Matcher.MatchPhones(c.analysis.Phones, known)
	if !ok {
		return false
	}
	d := lead.Duplicate{
		Business:   c.business,
		LeadID:     match.LeadID,
		Reason:     match.Reason,
		Similarity: match.Similarity,
	}
	rep.Counters.Duplicates++
	rep.Outcome.Duplicates = append(rep.Outcome.Duplicates, d)
	metrics.ObserveDuplicate(d.Reason)
	p.emit(progress.Event{
		JobID:  eventID,
		Stage:  progress.StageDuplicateSkipped,
		Source: c.business.Source,
		URL:    c.business.Website,
		Note:   d.Reason,
	})
	return true
}

func (p *Pipeline) createLead(ctx context.Context, jobID string, eventID [16]byte, params lead.DiscoveryParams, c candidate, rep *Report) (lead.Lead, bool) {
	id, err := p.deps.IDs.NewID()
	if err != nil {
		p.logger.Error("generate lead id", zap.String("job_id", jobID), zap.Error(err))
		return lead.Lead{}, false
	}
	now := p.deps.Clock.Now()
	b := c.business
	l := lead.Lead{
		ID:             id,
		OwnerID:        params.OwnerID,
		Name:           b.Name,
		Website:        b.Website,
		Phone:          b.Phone,
		Address:        b.Address,
		Stage:          lead.StageNew,
		Score:          lead.Unscored,
		EstimatedValue: params.EstimatedValue,
		Tags:           maps.Clone(params.Tags),
		Source:         b.Source,
		DiscoveryJobID: jobID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if a := c.analysis; a != nil {
		l.Analysis = a
		l.Score = a.Score
		l.Grade = a.Grade
		if l.Phone == "" && len(a.Phones) > 0 {
			l.Phone = a.Phones[0]
		}
		if len(a.Emails) > 0 {
			l.Email = a.Emails[0]
		}
	}
	if err := p.deps.Leads.CreateLead(ctx, l); err != nil {
		p.logger.Error("create lead", zap.String("job_id", jobID), zap.String("website", b.Website), zap.Error(err))
		return lead.Lead{}, false
	}

	rep.Counters.Created++
	rep.Outcome.LeadIDs = append(rep.Outcome.LeadIDs, id)
	metrics.ObserveLeadCreated()
	p.emit(progress.Event{JobID: eventID, Stage: progress.StageLeadCreated, Source: b.Source, URL: b.Website, Note: id})
	p.publish(ctx, jobID, l, c.analysis)
	return l, true
}

func (p *Pipeline) publish(ctx context.Context, jobID string, l lead.Lead, a *lead.WebsiteAnalysis) {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return
	}
	evt := LeadCreatedEvent{
		Type:      EventLeadCreated,
		LeadID:    l.ID,
		OwnerID:   l.OwnerID,
		JobID:     jobID,
		Name:      l.Name,
		Website:   l.Website,
		Phone:     l.Phone,
		Email:     l.Email,
		Score:     l.Score,
		Grade:     l.Grade,
		Source:    l.Source,
		CreatedAt: l.CreatedAt,
	}
	if a != nil {
		evt.Opportunity = a.Opportunity
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, evt); err != nil {
		p.logger.Warn("publish lead event", zap.String("lead_id", l.ID), zap.Error(err))
	}
}

// canceled reports whether ctx ended or the job was canceled through the API.
func (p *Pipeline) canceled(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	if p.deps.Jobs == nil {
		return false
	}
	job, err := p.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		p.logger.Debug("cancel check failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return job.Status == lead.JobStatusCanceled
}

// checkpoint publishes running counters so status polls see progress.
func (p *Pipeline) checkpoint(ctx context.Context, jobID string, counters lead.JobCounters) {
	if p.deps.Jobs == nil {
		return
	}
	if err := p.deps.Jobs.UpdateJobStatus(ctx, jobID, lead.JobStatusRunning, "", counters); err != nil {
		p.logger.Debug("checkpoint counters", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (p *Pipeline) emit(evt progress.Event) {
	evt.TS = p.deps.Clock.Now()
	p.deps.Progress.Emit(evt)
}

func eventJobID(jobID string) [16]byte {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return [16]byte{}
	}
	return progress.UUIDToBytes(id)
}
