// Package search queries web search providers for candidate businesses and
// merges their results into one deduplicated, directory-free list.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/leadscout/internal/dedup"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
)

// ErrUnknownSource is returned when a request names a provider that is not configured.
var ErrUnknownSource = errors.New("unknown search source")

// Query is what a single provider is asked for.
type Query struct {
	Terms    string
	Location string
	Limit    int
}

// Text renders the query string sent to a search engine.
func (q Query) Text() string {
	terms := strings.TrimSpace(q.Terms)
	location := strings.TrimSpace(q.Location)
	if location == "" {
		return terms
	}
	return terms + " in " + location
}

// Provider is one search engine.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]lead.Business, error)
}

// Multi fans a query out to several providers and merges what they return.
type Multi struct {
	providers []Provider
	blocklist *Blocklist
	logger    *zap.Logger
}

// Option customizes a Multi.
type Option func(*Multi)

// WithBlocklist replaces DefaultBlocklist.
func WithBlocklist(patterns []string) Option {
	return func(m *Multi) {
		m.blocklist = NewBlocklist(patterns)
	}
}

// WithLogger sets the logger used for provider failures.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Multi) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMulti builds a Multi over providers, queried in the given order.
func NewMulti(providers []Provider, opts ...Option) *Multi {
	m := &Multi{
		providers: slices.Clone(providers),
		blocklist: NewBlocklist(DefaultBlocklist),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sources lists the configured provider names.
func (m *Multi) Sources() []string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return names
}

// Search implements lead.Searcher. One provider failing does not fail the
// search; only when every selected provider fails is an error returned.
func (m *Multi) Search(ctx context.Context, req lead.SearchRequest) (lead.SearchResult, error) {
	ctx, span := otel.Tracer("leadscout/search").Start(ctx, "search.multi")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.terms", req.Terms),
		attribute.String("search.location", req.Location),
	)

	selected, err := m.selectProviders(req.Sources)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return lead.SearchResult{}, err
	}
	if len(selected) == 0 {
		return lead.SearchResult{}, errors.New("no search providers configured")
	}

	q := Query{Terms: req.Terms, Location: req.Location, Limit: req.Limit}
	hits := make([][]lead.Business, len(selected))
	errs := make([]error, len(selected))
	var g errgroup.Group
	for i, p := range selected {
		g.Go(func() error {
			res, searchErr := p.Search(ctx, q)
			metrics.ObserveSearch(p.Name(), len(res), searchErr)
			hits[i], errs[i] = res, searchErr
			return nil
		})
	}
	_ = g.Wait()

	result := lead.SearchResult{
		BySource: make(map[string]int),
		Failures: make(map[string]string),
	}
	var failed []error
	for i, p := range selected {
		if errs[i] != nil {
			result.Failures[p.Name()] = errs[i].Error()
			failed = append(failed, fmt.Errorf("%s: %w", p.Name(), errs[i]))
			m.logger.Warn("search provider failed", zap.String("source", p.Name()), zap.Error(errs[i]))
			continue
		}
		for j := range hits[i] {
			if hits[i][j].Source == "" {
				hits[i][j].Source = p.Name()
			}
		}
		result.Found += len(hits[i])
	}
	if len(failed) == len(selected) {
		allErr := fmt.Errorf("all search providers failed: %w", errors.Join(failed...))
		span.SetStatus(codes.Error, allErr.Error())
		return result, allErr
	}

	merged, filtered := m.merge(hits)
	if req.Limit > 0 && len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}
	for _, b := range merged {
		result.BySource[b.Source]++
	}
	result.Businesses = merged
	result.Filtered = filtered
	span.SetAttributes(
		attribute.Int("search.found", result.Found),
		attribute.Int("search.businesses", len(merged)),
	)
	return result, nil
}

func (m *Multi) selectProviders(sources []string) ([]Provider, error) {
	if len(sources) == 0 {
		return m.providers, nil
	}
	var selected []Provider
	seen := make(map[string]struct{}, len(sources))
	for _, raw := range sources {
		name := strings.ToLower(strings.TrimSpace(raw))
		idx := slices.IndexFunc(m.providers, func(p Provider) bool { return p.Name() == name })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, raw)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, m.providers[idx])
	}
	return selected, nil
}

// merge flattens provider results, dropping unusable and blocklisted hits
// and collapsing hits that share a registrable domain. The first hit wins;
// later hits only fill its empty fields.
func (m *Multi) merge(hits [][]lead.Business) ([]lead.Business, int) {
	var (
		out      []lead.Business
		filtered int
		byDomain = make(map[string]int)
	)
	for _, batch := range hits {
		for _, b := range batch {
			domain := dedup.NormalizeDomain(b.Website)
			root := siteRoot(b.Website)
			if domain == "" || root == "" || m.blocklist.IsBlocked(domain) {
				filtered++
				continue
			}
			b.Website = root
			b.Name = NameFromTitle(b.Name)
			if b.Name == "" {
				b.Name = domain
			}
			if b.Phone == "" {
				if phones := dedup.FindPhones(b.Snippet); len(phones) > 0 {
					b.Phone = phones[0]
				}
			}
			if idx, ok := byDomain[domain]; ok {
				fillMissing(&out[idx], b, domain)
				continue
			}
			byDomain[domain] = len(out)
			out = append(out, b)
		}
	}
	return out, filtered
}

// fillMissing copies src fields into empty dst fields. A name that is only
// the domain placeholder counts as empty.
func fillMissing(dst *lead.Business, src lead.Business, domain string) {
	if dst.Name == domain && src.Name != domain {
		dst.Name = src.Name
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
	if dst.Snippet == "" {
		dst.Snippet = src.Snippet
	}
}

var titleSeparators = []string{" | ", " - ", " – ", " — "}

// NameFromTitle takes the text before the first separator of a result title,
// which is where most sites put the business name.
func NameFromTitle(title string) string {
	title = strings.TrimSpace(title)
	cut := len(title)
	for _, sep := range titleSeparators {
		if idx := strings.Index(title, sep); idx > 0 && idx < cut {
			cut = idx
		}
	}
	return strings.TrimSpace(title[:cut])
}

// siteRoot reduces a result link to the site's home page.
func siteRoot(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	return scheme + "://" + strings.ToLower(u.Host) + "/"
}
