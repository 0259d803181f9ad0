// Package analysis scores business websites against a fixed rubric and
// extracts the contact details a salesperson needs.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/clock/system"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
)

// ErrInvalidURL is returned for inputs that cannot name a website.
var ErrInvalidURL = errors.New("invalid website url")

// Config controls fetch behavior.
type Config struct {
	RespectRobots bool
	// MaxRetries is the number of extra probe attempts after a failure.
	MaxRetries       int
	RetryBackoffBase time.Duration
}

// Analyzer implements lead.Analyzer.
type Analyzer struct {
	probe    lead.Fetcher
	headless lead.Fetcher
	detector lead.HeadlessDetector
	clock    lead.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Analyzer. headless and detector may be nil, which
// disables promotion.
func New(
	probe lead.Fetcher,
	headless lead.Fetcher,
	detector lead.HeadlessDetector,
	clock lead.Clock,
	cfg Config,
	logger *zap.Logger,
) *Analyzer {
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 250 * time.Millisecond
	}
	return &Analyzer{
		probe:    probe,
		headless: headless,
		detector: detector,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("analysis"),
	}
}

// NormalizeURL adds a missing scheme and rejects anything that is not an
// http(s) URL with a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u.String(), nil
}

// Analyze fetches rawURL and scores it. An unreachable site is a successful
// analysis with score 0; only invalid input and cancellation return errors.
// The returned bytes are the body that was scored.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string, opts lead.AnalyzeOptions) (lead.WebsiteAnalysis, []byte, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return lead.WebsiteAnalysis{}, nil, err
	}
	if a.probe == nil {
		return lead.WebsiteAnalysis{}, nil, errors.New("no probe fetcher configured")
	}

	ctx, span := otel.Tracer("leadscout/analysis").Start(ctx, "analysis.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("url.full", target))

	req := lead.FetchRequest{
		JobID:                 opts.JobID,
		URL:                   target,
		RespectRobots:         a.cfg.RespectRobots,
		RespectRobotsProvided: true,
	}
	if opts.RespectRobotsProvided {
		req.RespectRobots = opts.RespectRobots
	}

	resp, err := a.fetchWithRetry(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return lead.WebsiteAnalysis{}, nil, fmt.Errorf("analyze %s: %w", target, ctxErr)
		}
		a.logger.Debug("site unreachable", zap.String("url", target), zap.Error(err))
		out := Unreachable(target, err, a.clock.Now())
		metrics.ObserveAnalysis(out.Grade, out.Score)
		return out, nil, nil
	}

	if opts.AllowHeadless && a.headless != nil && a.detector != nil && a.detector.ShouldPromote(resp) {
		hreq := req
		hreq.UseHeadless = true
		rendered, herr := a.headless.Fetch(ctx, hreq)
		if herr == nil {
			resp = rendered
		} else {
			a.logger.Debug("headless render failed; scoring probe body", zap.String("url", target), zap.Error(herr))
		}
	}

	out := a.build(target, resp)
	span.SetAttributes(attribute.Int("analysis.score", out.Score), attribute.String("analysis.grade", out.Grade))
	metrics.ObserveAnalysis(out.Grade, out.Score)
	return out, resp.Body, nil
}

func (a *Analyzer) fetchWithRetry(ctx context.Context, req lead.FetchRequest) (lead.FetchResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.cfg.RetryBackoffBase << (attempt - 1)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lead.FetchResponse{}, fmt.Errorf("retry wait: %w", ctx.Err())
			case <-timer.C:
			}
		}
		resp, err := a.probe.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, colly.ErrRobotsTxtBlocked) {
			break
		}
		a.logger.Debug("probe fetch failed",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return lead.FetchResponse{}, lastErr
}

func (a *Analyzer) build(target string, resp lead.FetchResponse) lead.WebsiteAnalysis {
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = target
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	now := a.clock.Now()
	card := score(Input{
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		HTML:       resp.Body,
		LoadTime:   resp.Duration,
		Now:        now,
	}, doc)
	ext := extract(doc, resp.Body)

	return lead.WebsiteAnalysis{
		URL:          target,
		FinalURL:     finalURL,
		StatusCode:   resp.StatusCode,
		Reachable:    true,
		Score:        card.Score,
		Grade:        card.Grade,
		Opportunity:  card.Opportunity,
		Checks:       card.Checks,
		Title:        ext.Title,
		Description:  ext.Description,
		Emails:       ext.Emails,
		Phones:       ext.Phones,
		SocialLinks:  ext.SocialLinks,
		Technologies: ext.Technologies,
		LoadTime:     resp.Duration,
		PageBytes:    len(resp.Body),
		UsedHeadless: resp.UsedHeadless,
		AnalyzedAt:   now,
	}
}

// Unreachable is the analysis recorded for a site that could not be fetched.
func Unreachable(target string, err error, now time.Time) lead.WebsiteAnalysis {
	msg := "unreachable"
	if err != nil {
		msg = err.Error()
	}
	return lead.WebsiteAnalysis{
		URL:         target,
		Reachable:   false,
		Score:       0,
		Grade:       "F",
		Opportunity: lead.OpportunityHot,
		AnalyzedAt:  now,
		Error:       msg,
	}
}
