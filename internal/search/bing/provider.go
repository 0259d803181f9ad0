// Package bing scrapes Bing web results.
package bing

import (
	"context"
	"encoding/base64"
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
	Name = "bing"
	// DefaultBaseURL is Bing's public endpoint.
	DefaultBaseURL = "https://www.bing.com"
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
		return nil, errors.New("bing: empty query")
	}
	target := p.baseURL + "/search?q=" + url.QueryEscape(text)
	if q.Limit > 0 {
		target += fmt.Sprintf("&count=%d", min(q.Limit, 50))
	}

	var out []lead.Business
	c := search.NewCollector(ctx, p.collector)
	c.OnHTML("li.b_algo", func(e *colly.HTMLElement) {
		link := e.DOM.Find("h2 a").First()
		href, _ := link.Attr("href")
		website := unwrapClick(href)
		title := strings.TrimSpace(link.Text())
		if website == "" || title == "" {
			return
		}
		out = append(out, lead.Business{
			Name:    title,
			Website: website,
			Snippet: strings.TrimSpace(e.DOM.Find(".b_caption p").First().Text()),
			Source:  Name,
		})
	})
	if err := search.Visit(ctx, c, target); err != nil {
		return nil, fmt.Errorf("bing: %w", err)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// unwrapClick decodes "/ck/a?...&u=a1<base64>" click-tracking links.
func unwrapClick(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Host == "" {
		return ""
	}
	if !strings.HasSuffix(u.Host, "bing.com") || u.Path != "/ck/a" {
		return u.String()
	}
	encoded := strings.TrimPrefix(u.Query().Get("u"), "a1")
	if encoded == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
