package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusClass(t *testing.T) {
	testCases := []struct {
		code     int
		expected string
	}{
		{0, "error"},
		{-1, "error"},
		{101, "1xx"},
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{999, "other"},
	}

	for _, tc := range testCases {
		if got := StatusClass(tc.code); got != tc.expected {
			t.Errorf("StatusClass(%d) = %q; want %q", tc.code, got, tc.expected)
		}
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchesTotal == nil || fetchBytesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(fetchesTotal.WithLabelValues(FetcherHTTP, "2xx"))
	ObserveFetch(FetcherHTTP, 204, 512)
	if val := testutil.ToFloat64(fetchesTotal.WithLabelValues(FetcherHTTP, "2xx")); val != before+1 {
		t.Errorf("expected fetch counter to increase by 1, got %f -> %f", before, val)
	}
}

func TestObserveSearch(t *testing.T) {
	Init()
	ObserveSearch("search-test", 7, nil)
	ObserveSearch("search-test", 0, errors.New("blocked"))

	if val := testutil.ToFloat64(searchResultsTotal.WithLabelValues("search-test")); val != 7 {
		t.Errorf("expected 7 results, got %f", val)
	}
	if val := testutil.ToFloat64(searchErrorsTotal.WithLabelValues("search-test")); val != 1 {
		t.Errorf("expected 1 error, got %f", val)
	}
}

func TestObserveDuplicate(t *testing.T) {
	Init()
	ObserveDuplicate("dup-test")
	ObserveDuplicate("dup-test")
	if val := testutil.ToFloat64(duplicatesTotal.WithLabelValues("dup-test")); val != 2 {
		t.Errorf("expected 2 duplicates, got %f", val)
	}
}

// Fetch labels stay bounded no matter which status a site returns.
func FuzzStatusClass(f *testing.F) {
	for _, code := range []int{0, 200, 418, 599, 1000} {
		f.Add(code)
	}
	allowed := map[string]bool{"error": true, "1xx": true, "2xx": true, "3xx": true, "4xx": true, "5xx": true, "other": true}
	f.Fuzz(func(t *testing.T, code int) {
		if got := StatusClass(code); !allowed[got] {
			t.Errorf("StatusClass(%d) returned unbounded label %q", code, got)
		}
	})
}
