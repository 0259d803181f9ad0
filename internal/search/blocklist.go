package search

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultBlocklist names directories, social networks and search engines
// whose listings are never a business's own website. A "name.*" entry
// matches the brand under any public suffix.
var DefaultBlocklist = []string{
	"yelp.*", "yellowpages.*", "superpages.*", "bbb.org", "manta.com",
	"mapquest.*", "angi.com", "angieslist.*", "homeadvisor.*", "thumbtack.*",
	"porch.com", "nextdoor.*", "houzz.*", "tripadvisor.*", "foursquare.*",
	"chamberofcommerce.com", "facebook.*", "instagram.*", "linkedin.*",
	"twitter.*", "x.com", "tiktok.*", "pinterest.*", "youtube.*", "reddit.*",
	"google.*", "bing.*", "duckduckgo.*", "apple.*", "wikipedia.org",
	"amazon.*", "indeed.*", "glassdoor.*",
}

// Blocklist matches registrable domains against exact hosts, "*.suffix"
// wildcards and "brand.*" entries.
type Blocklist struct {
	exact    map[string]struct{}
	brands   map[string]struct{}
	suffixes []string
}

// NewBlocklist parses patterns; it returns nil when none are usable.
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{
		exact:  make(map[string]struct{}),
		brands: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
			continue
		case strings.HasSuffix(value, ".*"):
			if brand := strings.TrimSuffix(value, ".*"); brand != "" {
				b.brands[brand] = struct{}{}
			}
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.brands) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// IsBlocked reports whether host (or its registrable domain) is listed.
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err == nil {
		if _, ok := b.exact[registrable]; ok {
			return true
		}
		suffix, _ := publicsuffix.PublicSuffix(registrable)
		brand := strings.TrimSuffix(strings.TrimSuffix(registrable, suffix), ".")
		if _, ok := b.brands[brand]; ok {
			return true
		}
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
