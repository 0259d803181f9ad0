package bing

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/search"
)

func TestProviderSearch(t *testing.T) {
	t.Parallel()

	tracked := "https://www.bing.com/ck/a?!&&p=abc&u=a1" + base64.RawURLEncoding.EncodeToString([]byte("https://zedpipes.net/")) + "&ntb=1"
	page := `<html><body><ol id="b_results">
<li class="b_algo"><h2><a href="https://www.acmeplumbing.com/">Acme Plumbing - Austin</a></h2>
  <div class="b_caption"><p>Emergency plumbing, 24/7.</p></div></li>
<li class="b_algo"><h2><a href="` + tracked + `">Zed Pipes</a></h2></li>
<li class="b_ad"><h2><a href="https://ads.example.com/">Ad</a></h2></li>
</ol></body></html>`

	requests := make(chan *url.URL, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.URL
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL})
	require.Equal(t, Name, p.Name())

	got, err := p.Search(context.Background(), search.Query{Terms: "plumbers", Location: "Austin", Limit: 10})
	require.NoError(t, err)
	got0 := <-requests
	require.Equal(t, "/search", got0.Path)
	require.Equal(t, "plumbers in Austin", got0.Query().Get("q"))
	require.Equal(t, "10", got0.Query().Get("count"))
	require.Equal(t, []lead.Business{
		{Name: "Acme Plumbing - Austin", Website: "https://www.acmeplumbing.com/", Snippet: "Emergency plumbing, 24/7.", Source: Name},
		{Name: "Zed Pipes", Website: "https://zedpipes.net/", Source: Name},
	}, got)
}

func TestProviderSearchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Search(context.Background(), search.Query{Terms: "x"})
	require.ErrorContains(t, err, "status 403")
}

func TestUnwrapClick(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://acme.com/", unwrapClick("https://acme.com/"))
	require.Empty(t, unwrapClick("https://www.bing.com/ck/a?u="))
	require.Empty(t, unwrapClick("https://www.bing.com/ck/a?u=a1%%%"))
	require.Empty(t, unwrapClick("/relative"))
}
