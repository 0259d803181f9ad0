package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/dedup"
	"github.com/JakeFAU/leadscout/internal/hash/sha256"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/progress"
	memorypublisher "github.com/JakeFAU/leadscout/internal/publisher/memory"
	"github.com/JakeFAU/leadscout/internal/storage/memory"
)

const testJobID = "0190b5a8-1c2d-7e3f-8a9b-0c1d2e3f4a5b"

var testNow = time.Date(2026, time.October, 17, 9, 30, 0, 0, time.UTC)

type fakeSearcher struct {
	result lead.SearchResult
	err    error
	req    lead.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req lead.SearchRequest) (lead.SearchResult, error) {
	f.req = req
	return f.result, f.err
}

type analyzed struct {
	analysis lead.WebsiteAnalysis
	body     []byte
	err      error
}

type fakeAnalyzer struct {
	sites    map[string]analyzed
	calls    atomic.Int32
	headless atomic.Int32

	mu   sync.Mutex
	opts []lead.AnalyzeOptions
}

func (f *fakeAnalyzer) Analyze(_ context.Context, rawURL string, opts lead.AnalyzeOptions) (lead.WebsiteAnalysis, []byte, error) {
	f.calls.Add(1)
	if opts.AllowHeadless {
		f.headless.Add(1)
	}
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	site, ok := f.sites[rawURL]
	if !ok {
		return lead.WebsiteAnalysis{}, nil, fmt.Errorf("unexpected url %s", rawURL)
	}
	return site.analysis, site.body, site.err
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("lead-%d", s.n), nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(evt progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) count(stage progress.Stage) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Stage == stage {
			n++
		}
	}
	return n
}

type headlessPolicy struct{}

func (headlessPolicy) AllowHeadless(string, string) bool { return true }
func (headlessPolicy) AllowFetch(_ string, url string) bool {
	return url != "https://denied.example/"
}

type countingLimiter struct{ waits atomic.Int32 }

func (l *countingLimiter) Wait(context.Context, string) error {
	l.waits.Add(1)
	return nil
}

type harness struct {
	searcher  *fakeSearcher
	analyzer  *fakeAnalyzer
	leads     *memory.LeadStore
	jobs      *memory.JobStore
	blobs     *memory.BlobStore
	publisher *memorypublisher.Publisher
	events    *eventLog
	limiter   *countingLimiter
	pipeline  *Pipeline
}

func newHarness(t *testing.T, status lead.JobStatus) *harness {
	t.Helper()
	h := &harness{
		searcher: &fakeSearcher{result: lead.SearchResult{
			Businesses: []lead.Business{
				{Name: "Acme Plumbing", Website: "https://acme.com/", Source: "duckduckgo"},
				{Name: "Zed Pipes", Website: "https://zedpipes.net/", Phone: "512-555-0111", Source: "bing"},
				{Name: "Old Friend", Website: "https://www.old.com/", Source: "duckduckgo"},
				{Name: "Broken Site", Website: "https://broken.example/", Source: "duckduckgo"},
			},
			Found:    6,
			Filtered: 2,
			BySource: map[string]int{"duckduckgo": 3, "bing": 1},
		}},
		analyzer: &fakeAnalyzer{sites: map[string]analyzed{
			"https://acme.com/": {
				analysis: lead.WebsiteAnalysis{URL: "https://acme.com/", StatusCode: 200, Reachable: true, Score: 80, Grade: "B", Opportunity: lead.OpportunityCold, Emails: []string{"hi@acme.com"}, Phones: []string{"5125550100"}, PageBytes: 12},
				body:     []byte("<html>acme</html>"),
			},
			"https://zedpipes.net/": {
				analysis: lead.WebsiteAnalysis{URL: "https://zedpipes.net/", StatusCode: 200, Reachable: true, Score: 30, Grade: "F", Opportunity: lead.OpportunityHot, Phones: []string{"5125550199"}},
				body:     []byte("<html>zed</html>"),
			},
			"https://broken.example/": {err: errors.New("invalid website url")},
		}},
		leads:     memory.NewLeadStore(),
		jobs:      memory.NewJobStore(),
		blobs:     memory.NewBlobStore(),
		publisher: memorypublisher.New(),
		events:    &eventLog{},
		limiter:   &countingLimiter{},
	}
	ctx := context.Background()
	require.NoError(t, h.leads.CreateLead(ctx, lead.Lead{
		ID: "lead-old", OwnerID: "owner-1", Name: "Old Friend LLC", Website: "https://old.com", Stage: lead.StageContacted, CreatedAt: testNow,
	}))
	require.NoError(t, h.jobs.CreateJob(ctx, lead.Job{ID: testJobID, Status: status, Submitted: testNow}))

	h.pipeline = New(Deps{
		Searcher:  h.searcher,
		Analyzer:  h.analyzer,
		Leads:     h.leads,
		Jobs:      h.jobs,
		Blobs:     h.blobs,
		Publisher: h.publisher,
		Hasher:    sha256.New(),
		IDs:       &seqIDs{},
		Clock:     fixedClock{},
		Matcher:   dedup.NewMatcher(0.85),
		Limiter:   h.limiter,
		Policy:    headlessPolicy{},
		Progress:  h.events,
	}, Config{BatchSize: 2, SnapshotPrefix: "snapshots", Topic: "leads"}, nil)
	return h
}

func params(analyze bool) lead.DiscoveryParams {
	return lead.DiscoveryParams{
		OwnerID:         "owner-1",
		Query:           "plumbers",
		Location:        "Austin, TX",
		MaxResults:      10,
		Sources:         []string{"duckduckgo", "bing"},
		Analyze:         analyze,
		HeadlessAllowed: true,
		EstimatedValue:  250000,
		Tags:            map[string]string{"campaign": "fall"},
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusRunning)
	ctx := context.Background()

	rep, err := h.pipeline.Run(ctx, testJobID, params(true))
	require.NoError(t, err)
	require.False(t, rep.Canceled)
	require.Equal(t, lead.JobCounters{
		Found:          6,
		Filtered:       2,
		Duplicates:     1,
		Analyzed:       2,
		AnalysisFailed: 1,
		Created:        3,
	}, rep.Counters)
	require.Equal(t, []string{"lead-1", "lead-2", "lead-3"}, rep.Outcome.LeadIDs)
	require.Len(t, rep.Outcome.Duplicates, 1)
	require.Equal(t, "lead-old", rep.Outcome.Duplicates[0].LeadID)
	require.Equal(t, dedup.ReasonDomain, rep.Outcome.Duplicates[0].Reason)

	require.Equal(t, lead.SearchRequest{Terms: "plumbers", Location: "Austin, TX", Limit: 10, Sources: []string{"duckduckgo", "bing"}}, h.searcher.req)
	require.EqualValues(t, 3, h.analyzer.calls.Load())
	require.EqualValues(t, 3, h.analyzer.headless.Load())
	require.EqualValues(t, 3, h.limiter.waits.Load())

	acme, err := h.leads.GetLead(ctx, "owner-1", "lead-1")
	require.NoError(t, err)
	require.Equal(t, lead.StageNew, acme.Stage)
	require.Equal(t, 80, acme.Score)
	require.Equal(t, "B", acme.Grade)
	require.Equal(t, "hi@acme.com", acme.Email)
	require.Equal(t, "5125550100", acme.Phone)
	require.Equal(t, int64(250000), acme.EstimatedValue)
	require.Equal(t, map[string]string{"campaign": "fall"}, acme.Tags)
	require.Equal(t, testJobID, acme.DiscoveryJobID)
	require.NotNil(t, acme.Analysis)
	require.Len(t, acme.Analysis.ContentHash, 64)
	require.Equal(t, "memory://snapshots/"+testJobID+"/"+acme.Analysis.ContentHash+".html", acme.Analysis.SnapshotURI)

	zed, err := h.leads.GetLead(ctx, "owner-1", "lead-2")
	require.NoError(t, err)
	require.Equal(t, "512-555-0111", zed.Phone, "search phone wins over extracted phone")

	broken, err := h.leads.GetLead(ctx, "owner-1", "lead-3")
	require.NoError(t, err)
	require.Equal(t, lead.Unscored, broken.Score)
	require.Empty(t, broken.Grade)
	require.Nil(t, broken.Analysis)

	require.Equal(t, 2, h.blobs.Len())
	msgs := h.publisher.Topic("leads")
	require.Len(t, msgs, 3)
	var first LeadCreatedEvent
	require.NoError(t, msgs[0].Decode(&first))
	require.Equal(t, EventLeadCreated, first.Type)
	require.Equal(t, "lead-1", first.LeadID)
	require.Equal(t, lead.OpportunityCold, first.Opportunity)

	require.Equal(t, 2, h.events.count(progress.StageSearchDone))
	require.Equal(t, 1, h.events.count(progress.StageDuplicateSkipped))
	require.Equal(t, 3, h.events.count(progress.StageAnalyzeDone))
	require.Equal(t, 3, h.events.count(progress.StageLeadCreated))
	for _, evt := range h.events.events {
		require.NoError(t, evt.Validate(), evt.Stage)
	}

	job, err := h.jobs.GetJob(ctx, testJobID)
	require.NoError(t, err)
	require.Equal(t, rep.Counters, job.Counters, "checkpoint stores running counters")
}

func TestPipelineWithoutAnalysis(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusRunning)
	rep, err := h.pipeline.Run(context.Background(), testJobID, params(false))
	require.NoError(t, err)
	require.Equal(t, 3, rep.Counters.Created)
	require.Zero(t, rep.Counters.Analyzed)
	require.Zero(t, h.analyzer.calls.Load())
	require.Zero(t, h.blobs.Len())

	l, err := h.leads.GetLead(context.Background(), "owner-1", "lead-1")
	require.NoError(t, err)
	require.Equal(t, lead.Unscored, l.Score)
}

func TestPipelinePolicyDeniesFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusRunning)
	h.searcher.result = lead.SearchResult{
		Businesses: []lead.Business{{Name: "Denied", Website: "https://denied.example/", Source: "bing"}},
		Found:      1,
		BySource:   map[string]int{"bing": 1},
	}
	rep, err := h.pipeline.Run(context.Background(), testJobID, params(true))
	require.NoError(t, err)
	require.Equal(t, 1, rep.Counters.AnalysisFailed)
	require.Equal(t, 1, rep.Counters.Created)
	require.Zero(t, h.analyzer.calls.Load())
}

func TestPipelineSearchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusRunning)
	h.searcher.result = lead.SearchResult{Failures: map[string]string{"bing": "blocked"}}
	h.searcher.err = errors.New("all search providers failed")

	rep, err := h.pipeline.Run(context.Background(), testJobID, params(true))
	require.ErrorContains(t, err, "search: all search providers failed")
	require.Zero(t, rep.Counters.Created)
	require.Equal(t, 1, h.events.count(progress.StageSearchDone))
}

func TestPipelineStopsWhenJobCanceled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusCanceled)
	rep, err := h.pipeline.Run(context.Background(), testJobID, params(true))
	require.NoError(t, err)
	require.True(t, rep.Canceled)
	require.Zero(t, rep.Counters.Created)
	require.Equal(t, 1, rep.Counters.Duplicates)
	require.Zero(t, h.analyzer.calls.Load())
}

func TestPipelineStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusRunning)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.searcher.result.Businesses = h.searcher.result.Businesses[:2]

	rep, err := h.pipeline.Run(ctx, testJobID, params(true))
	require.NoError(t, err)
	require.True(t, rep.Canceled)
	require.Zero(t, rep.Counters.Created)
}

type failingLeadStore struct {
	*memory.LeadStore
}

func (failingLeadStore) ListOwnerLeads(context.Context, string) ([]lead.Lead, error) {
	return nil, errors.New("db down")
}

func TestPipelineOwnerLeadsFailure(t *testing.T) {
	t.Parallel()

	p := New(Deps{
		Searcher: &fakeSearcher{result: lead.SearchResult{Businesses: []lead.Business{{Name: "A", Website: "https://a.com/"}}, Found: 1}},
		Leads:    failingLeadStore{memory.NewLeadStore()},
		IDs:      &seqIDs{},
	}, Config{}, nil)
	_, err := p.Run(context.Background(), testJobID, params(false))
	require.ErrorContains(t, err, "load owner leads: db down")
}

func TestPipelineForwardsRobotsChoice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusRunning)
	p := params(true)
	p.RespectRobots = false
	p.RespectRobotsProvided = true

	_, err := h.pipeline.Run(context.Background(), testJobID, p)
	require.NoError(t, err)

	h.analyzer.mu.Lock()
	defer h.analyzer.mu.Unlock()
	require.Len(t, h.analyzer.opts, 3)
	for _, opts := range h.analyzer.opts {
		require.True(t, opts.RespectRobotsProvided)
		require.False(t, opts.RespectRobots)
		require.Equal(t, testJobID, opts.JobID)
		require.True(t, opts.AllowHeadless)
	}
}

func TestPipelineSkipsSitePhoneDuplicates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, lead.JobStatusRunning)
	ctx := context.Background()
	require.NoError(t, h.leads.CreateLead(ctx, lead.Lead{
		ID: "lead-acme-old", OwnerID: "owner-1", Name: "Acme Plumbing Services", Website: "https://acme-austin.com",
		Phone: "(512) 555-0100", Stage: lead.StageNew, CreatedAt: testNow,
	}))
	h.searcher.result = lead.SearchResult{
		Businesses: []lead.Business{
			{Name: "Acme Plumbing", Website: "https://acme.com/", Source: "duckduckgo"},
			{Name: "Zed Pipes", Website: "https://zedpipes.net/", Source: "bing"},
			{Name: "Zed Pipes South", Website: "https://zedsouth.net/", Source: "bing"},
		},
		Found:    3,
		BySource: map[string]int{"duckduckgo": 1, "bing": 2},
	}
	// The second Zed site lists the number the first one already claimed.
	h.analyzer.sites["https://zedsouth.net/"] = analyzed{
		analysis: lead.WebsiteAnalysis{URL: "https://zedsouth.net/", StatusCode: 200, Reachable: true, Score: 50, Phones: []string{"512.555.0199"}},
		body:     []byte("<html>zed south</html>"),
	}

	rep, err := h.pipeline.Run(ctx, testJobID, params(true))
	require.NoError(t, err)
	require.Equal(t, 3, rep.Counters.Analyzed)
	require.Equal(t, 2, rep.Counters.Duplicates)
	require.Equal(t, 1, rep.Counters.Created)
	require.Equal(t, []string{"lead-1"}, rep.Outcome.LeadIDs)

	require.Len(t, rep.Outcome.Duplicates, 2)
	require.Equal(t, "lead-acme-old", rep.Outcome.Duplicates[0].LeadID)
	require.Equal(t, dedup.ReasonPhone, rep.Outcome.Duplicates[0].Reason)
	require.Equal(t, "https://acme.com/", rep.Outcome.Duplicates[0].Business.Website)
	require.Equal(t, "lead-1", rep.Outcome.Duplicates[1].LeadID)
	require.Equal(t, dedup.ReasonPhone, rep.Outcome.Duplicates[1].Reason)

	zed, err := h.leads.GetLead(ctx, "owner-1", "lead-1")
	require.NoError(t, err)
	require.Equal(t, "https://zedpipes.net/", zed.Website)
	require.Equal(t, 2, h.events.count(progress.StageDuplicateSkipped))
}
