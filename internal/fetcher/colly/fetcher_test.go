package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

func TestCollectorSettings(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "leadscout-test", RespectRobots: true, MaxBodyBytes: 1024})
	require.Equal(t, defaultTimeout, f.cfg.Timeout)

	c, robots := f.collector(context.Background(), lead.FetchRequest{
		URL:                   "https://example.com",
		RespectRobots:         false,
		RespectRobotsProvided: true,
	})
	require.Equal(t, "leadscout-test", c.UserAgent)
	require.True(t, c.IgnoreRobotsTxt, "request override should disable robots")
	require.Nil(t, robots)
	require.Equal(t, 1024, c.MaxBodySize)
	require.True(t, c.ParseHTTPErrorResponse)

	_, robots = f.collector(context.Background(), lead.FetchRequest{URL: "https://example.com"})
	require.NotNil(t, robots)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "en-US", r.Header.Get("Accept-Language"))
		_, _ = w.Write([]byte("<html><title>Acme Plumbing</title></html>"))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><title>Not here</title></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "leadscout-test", Timeout: 2 * time.Second})
	headers := http.Header{"Accept-Language": {"en-US"}}

	resp, err := f.Fetch(context.Background(), lead.FetchRequest{URL: srv.URL + "/", Headers: headers})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "Acme Plumbing")
	require.False(t, resp.UsedHeadless)
	require.Positive(t, resp.Duration)

	resp, err = f.Fetch(context.Background(), lead.FetchRequest{URL: srv.URL + "/gone", Headers: headers})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, string(resp.Body), "Not here")
}

func TestFetchFallsBackToPlainHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><title>No TLS Here</title></html>"))
	}))
	t.Cleanup(srv.Close)

	// The test server only speaks plain http, so the https attempt fails.
	httpsURL := "https://" + strings.TrimPrefix(srv.URL, "http://")
	f := New(Config{Timeout: 2 * time.Second})

	resp, err := f.Fetch(context.Background(), lead.FetchRequest{URL: httpsURL})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.URL, "http://"), resp.URL)
	require.Contains(t, string(resp.Body), "No TLS Here")

	strict := New(Config{Timeout: 2 * time.Second, NoPlainHTTPFallback: true})
	_, err = strict.Fetch(context.Background(), lead.FetchRequest{URL: httpsURL})
	require.Error(t, err)
}

func TestFetchRobotsServerErrorAllowsVisit(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><title>Acme</title></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := New(Config{RespectRobots: true, Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), lead.FetchRequest{URL: srv.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, lead.RobotsStatusIndeterminate, resp.RobotsStatus)
	require.Equal(t, robotsReasonServerError, resp.RobotsReason)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, lead.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
