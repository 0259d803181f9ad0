// Package headless renders JavaScript-driven business websites with headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
)

const (
	defaultNavTimeout  = 30 * time.Second
	defaultSettleDelay = 750 * time.Millisecond
)

// Viewport is the emulated screen a page is rendered on.
type Viewport struct {
	Width  int64
	Height int64
	Scale  float64
	Mobile bool
}

var (
	// DesktopViewport is a common laptop screen.
	DesktopViewport = Viewport{Width: 1366, Height: 768, Scale: 1}
	// PhoneViewport approximates a current mid-size phone. Small-business
	// sites are mostly visited on phones, so this is the default.
	PhoneViewport = Viewport{Width: 390, Height: 844, Scale: 3, Mobile: true}
)

// Config controls the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay gives site builders (Wix, Squarespace) time to hydrate.
	SettleDelay time.Duration
	Viewport    Viewport
}

// Fetcher implements lead.Fetcher using chromedp.
type Fetcher struct {
	cfg         Config
	slots       *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp starts a browser allocator. Chrome itself launches lazily on
// the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("headless max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		cfg.Viewport = PhoneViewport
	}
	if cfg.Viewport.Scale <= 0 {
		cfg.Viewport.Scale = 1
	}

	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders the page and returns the hydrated DOM. Duration is the
// browser's own navigation timing when available, so the load-time check
// scores what a visitor would see rather than our queueing.
func (f *Fetcher) Fetch(ctx context.Context, request lead.FetchRequest) (lead.FetchResponse, error) {
	if f.slots != nil {
		if err := f.slots.Acquire(ctx, 1); err != nil {
			return lead.FetchResponse{}, fmt.Errorf("wait for headless slot: %w", err)
		}
		defer f.slots.Release(1)
	}

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.listen)

	start := time.Now()
	page, err := f.render(tabCtx, request)
	if err != nil {
		metrics.ObserveFetch(metrics.FetcherHeadless, 0, 0)
		return lead.FetchResponse{}, err
	}
	elapsed := time.Since(start)
	if page.loadMillis > 0 {
		elapsed = time.Duration(page.loadMillis * float64(time.Millisecond))
	}

	status, headers, finalURL := doc.result(request.URL, page.location)
	metrics.ObserveFetch(metrics.FetcherHeadless, status, len(page.html))
	return lead.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(page.html),
		Duration:     elapsed,
		UsedHeadless: true,
	}, nil
}

type renderedPage struct {
	html       string
	location   string
	loadMillis float64
}

const navigationTimingJS = `(() => {
  const nav = performance.getEntriesByType("navigation")[0];
  return nav ? nav.loadEventEnd || nav.domContentLoadedEventEnd || 0 : 0;
})()`

func (f *Fetcher) render(ctx context.Context, request lead.FetchRequest) (renderedPage, error) {
	var page renderedPage
	err := chromedp.Run(ctx,
		f.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&page.location),
		chromedp.Evaluate(navigationTimingJS, &page.loadMillis),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	)
	if err != nil {
		return renderedPage{}, fmt.Errorf("render %s: %w", request.URL, err)
	}
	return page, nil
}

func (f *Fetcher) prepareTab(headers http.Header) chromedp.Action {
	vp := f.cfg.Viewport
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network events: %w", err)
		}
		metricsOverride := emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, vp.Scale, vp.Mobile)
		if err := metricsOverride.Do(ctx); err != nil {
			return fmt.Errorf("emulate viewport: %w", err)
		}
		if vp.Mobile {
			if err := emulation.SetTouchEmulationEnabled(true).Do(ctx); err != nil {
				return fmt.Errorf("emulate touch: %w", err)
			}
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("override user agent: %w", err)
			}
		}
		if extra := extraHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// documentResponse keeps the first top-level document response of a tab.
// Later document responses come from iframes (booking widgets, maps).
type documentResponse struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) listen(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}
	d.seen = true
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
	d.headers = headersFromNetwork(resp.Response.Headers)
}

// result falls back to the tab location, then the requested URL, when no
// document response was observed (for example a served-from-cache page).
func (d *documentResponse) result(requestURL, location string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, url, headers := d.status, d.url, d.headers.Clone()
	if status == 0 {
		status = http.StatusOK
	}
	if url == "" {
		url = location
	}
	if url == "" {
		url = requestURL
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}

func headersFromNetwork(src network.Headers) http.Header {
	out := make(http.Header, len(src))
	for key, value := range src {
		switch v := value.(type) {
		case string:
			out.Add(key, v)
		case []any:
			for _, item := range v {
				out.Add(key, fmt.Sprint(item))
			}
		default:
			out.Add(key, fmt.Sprint(v))
		}
	}
	return out
}

func extraHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key := range h {
		if v := h.Get(key); v != "" {
			out[key] = v
		}
	}
	return out
}
