// Package duckduckgo scrapes DuckDuckGo's HTML results page.
package duckduckgo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/search"
)

const (
	// Name identifies the provider in sources and metrics.
	Name = "duckduckgo"
	// DefaultBaseURL is the no-JavaScript endpoint.
	DefaultBaseURL = "https://html.duckduckgo.com"
)

// Config controls the provider.
type Config struct {
	BaseURL   string
	Collector search.CollectorConfig
}

// Provider implements search.Provider.
type Provider struct {
	baseURL   string
	collector search.CollectorConfig
}

// New builds a Provider.
func New(cfg Config) *Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Provider{baseURL: base, collector: cfg.Collector}
}

// Name implements search.Provider.
func (p *Provider) Name() string {
	return Name
}

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, q search.Query) ([]lead.Business, error) {
	text := q.Text()
	if text == "" {
		return nil, errors.New("duckduckgo: empty query")
	}
	target := p.baseURL + "/html/?q=" + url.QueryEscape(text)

	var out []lead.Business
	c := search.NewCollector(ctx, p.collector)
	c.OnHTML(".result", func(e *colly.HTMLElement) {
		if e.DOM.HasClass("result--ad") {
			return
		}
		link := e.DOM.Find("a.result__a").First()
		href, _ := link.Attr("href")
		website := unwrapRedirect(href)
		title := strings.TrimSpace(link.Text())
		if website == "" || title == "" {
			return
		}
		out = append(out, lead.Business{
			Name:    title,
			Website: website,
			Snippet: strings.TrimSpace(e.ChildText(".result__snippet")),
			Source:  Name,
		})
	})
	if err := search.Visit(ctx, c, target); err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// unwrapRedirect returns the destination of a "/l/?uddg=" tracking link, or
// the link itself when it is already absolute.
func unwrapRedirect(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Host == "" {
		return ""
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String()
}
