// Package collyfetcher implements the probe Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodyBytes caps the downloaded body; zero keeps colly's default.
	MaxBodyBytes int
	// NoPlainHTTPFallback disables the http:// retry after an https:// failure.
	NoPlainHTTPFallback bool
}

// Fetcher implements lead.Fetcher with one colly collector per request.
// Collectors are not cloned because clones share the HTTP backend, and the
// robots transport is per request.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Fetcher{cfg: cfg, transport: newHTTPTransport()}
}

// Fetch GETs the homepage. A site that fails over https is retried once over
// plain http, since plenty of small businesses never set up TLS; the https
// rubric check then scores the final URL.
func (f *Fetcher) Fetch(ctx context.Context, request lead.FetchRequest) (lead.FetchResponse, error) {
	resp, err := f.visit(ctx, request)
	if err == nil || ctx.Err() != nil || !f.shouldFallback(request.URL, err) {
		return resp, err
	}
	plain := request
	plain.URL = "http://" + strings.TrimPrefix(request.URL, "https://")
	resp, perr := f.visit(ctx, plain)
	if perr != nil {
		return lead.FetchResponse{}, fmt.Errorf("%w (plain http: %w)", err, perr)
	}
	metrics.ObservePlainHTTPFallback()
	return resp, nil
}

func (f *Fetcher) shouldFallback(rawURL string, err error) bool {
	if f.cfg.NoPlainHTTPFallback || !strings.HasPrefix(rawURL, "https://") {
		return false
	}
	return !errors.Is(err, colly.ErrRobotsTxtBlocked)
}

func (f *Fetcher) visit(ctx context.Context, request lead.FetchRequest) (lead.FetchResponse, error) {
	c, robots := f.collector(ctx, request)

	var (
		result   lead.FetchResponse
		fetchErr error
		start    = time.Now()
	)
	c.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	c.OnResponse(func(r *colly.Response) {
		result = toFetchResponse(r, time.Since(start))
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(request.URL); err != nil {
		return lead.FetchResponse{}, f.fail(ctx, request.URL, err)
	}
	if fetchErr != nil {
		return lead.FetchResponse{}, f.fail(ctx, request.URL, fetchErr)
	}
	robots.apply(&result)
	metrics.ObserveFetch(metrics.FetcherHTTP, result.StatusCode, len(result.Body))
	return result, nil
}

func (f *Fetcher) fail(ctx context.Context, rawURL string, err error) error {
	metrics.ObserveFetch(metrics.FetcherHTTP, 0, 0)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, ctxErr)
	}
	return fmt.Errorf("fetch %s: %w", rawURL, err)
}

// collector builds a collector for one request. The robots outcome is only
// tracked when robots.txt is honored.
func (f *Fetcher) collector(ctx context.Context, request lead.FetchRequest) (*colly.Collector, *robotsOutcome) {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.StdlibContext(ctx))
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = f.cfg.MaxBodyBytes
	}
	// Broken sites still return a page worth scoring.
	c.ParseHTTPErrorResponse = true

	respectRobots := f.cfg.RespectRobots
	if request.RespectRobotsProvided {
		respectRobots = request.RespectRobots
	}
	c.IgnoreRobotsTxt = !respectRobots
	if !respectRobots {
		c.WithTransport(f.transport)
		return c, nil
	}
	outcome := &robotsOutcome{}
	c.WithTransport(&robotsTransport{base: f.transport, outcome: outcome})
	return c, outcome
}

func toFetchResponse(r *colly.Response, elapsed time.Duration) lead.FetchResponse {
	out := lead.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   elapsed,
	}
	if r.Headers != nil {
		out.Headers = r.Headers.Clone()
	}
	return out
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   8 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 12 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       60 * time.Second,
	}
}
