package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultTimeout = 15 * time.Second

// CollectorConfig shapes the colly collector used by scraping providers.
type CollectorConfig struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport; tests leave it nil.
	Transport http.RoundTripper
}

// NewCollector builds a synchronous collector for one search. Its requests
// are bound to ctx, so canceling the search aborts the HTTP call too.
func NewCollector(ctx context.Context, cfg CollectorConfig) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.StdlibContext(ctx))
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)
	if cfg.Transport != nil {
		c.WithTransport(cfg.Transport)
	}
	return c
}

// Visit fetches target with collector and waits for the callbacks to finish
// or ctx to end. Callers must not read callback state after an error.
func Visit(ctx context.Context, collector *colly.Collector, target string) error {
	var respErr error
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			respErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		respErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("search canceled: %w", ctx.Err())
	case err := <-done:
		if respErr != nil {
			return fmt.Errorf("search response: %w", respErr)
		}
		if err != nil {
			return fmt.Errorf("search visit: %w", err)
		}
		return nil
	}
}
