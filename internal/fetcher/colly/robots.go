package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
)

// Reasons recorded when robots.txt could not be read.
const (
	robotsReasonTimeout     = "robots.txt timed out"
	robotsReasonUnreachable = "robots.txt unreachable"
	robotsReasonServerError = "robots.txt server error"
)

const allowAllRobots = "User-agent: *\nAllow: /\n"

var robotsRetryDelay = 300 * time.Millisecond

// robotsTransport serves an allow-all robots.txt when the real one cannot be
// read. Small-business hosts often time out or 5xx on robots.txt while the
// homepage is fine, and colly would otherwise fail the whole visit.
type robotsTransport struct {
	base    http.RoundTripper
	outcome *robotsOutcome
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("round trip: %w", err)
		}
		return resp, nil
	}

	resp, err := t.base.RoundTrip(req.Clone(req.Context()))
	if err != nil && isTimeout(err) && req.Context().Err() == nil {
		if werr := wait(req.Context(), robotsRetryDelay); werr != nil {
			return nil, werr
		}
		resp, err = t.base.RoundTrip(req.Clone(req.Context()))
	}
	switch {
	case err != nil && req.Context().Err() != nil:
		return nil, fmt.Errorf("fetch robots.txt: %w", req.Context().Err())
	case err != nil && isTimeout(err):
		return t.allowAll(req, robotsReasonTimeout), nil
	case err != nil:
		return t.allowAll(req, robotsReasonUnreachable), nil
	case resp.StatusCode >= http.StatusInternalServerError:
		_ = resp.Body.Close()
		return t.allowAll(req, robotsReasonServerError), nil
	}
	return resp, nil
}

func (t *robotsTransport) allowAll(req *http.Request, reason string) *http.Response {
	t.outcome.markIndeterminate(reason)
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Request:       req,
	}
}

// robotsOutcome records whether robots.txt was actually consulted.
type robotsOutcome struct {
	mu     sync.Mutex
	status lead.RobotsStatus
	reason string
}

func (o *robotsOutcome) markIndeterminate(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == lead.RobotsStatusIndeterminate {
		return
	}
	o.status = lead.RobotsStatusIndeterminate
	o.reason = reason
	metrics.ObserveRobotsFallback(reason)
}

func (o *robotsOutcome) apply(resp *lead.FetchResponse) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	resp.RobotsStatus = o.status
	resp.RobotsReason = o.reason
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
