package dedup

import (
	"github.com/JakeFAU/leadscout/internal/lead"
)

// DefaultThreshold is the name similarity at which two businesses are treated as one.
const DefaultThreshold = 0.85

// Match reasons, in precedence order.
const (
	ReasonDomain = "domain"
	ReasonPhone  = "phone"
	ReasonName   = "name"
)

// Match describes why a candidate duplicates an existing lead.
type Match struct {
	LeadID     string
	Reason     string
	Similarity float64
}

// Matcher compares candidates against known leads.
type Matcher struct {
	threshold float64
}

// NewMatcher builds a Matcher. Thresholds outside (0,1] fall back to DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured name similarity threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

type keyed struct {
	id     string
	name   string
	domain string
	phone  string
}

func keyLead(l lead.Lead) keyed {
	return keyed{id: l.ID, name: l.Name, domain: NormalizeDomain(l.Website), phone: NormalizePhone(l.Phone)}
}

func keyBusiness(b lead.Business) keyed {
	return keyed{name: b.Name, domain: NormalizeDomain(b.Website), phone: NormalizePhone(b.Phone)}
}

// Match reports whether candidate duplicates any of existing.
func (m *Matcher) Match(candidate lead.Business, existing []lead.Lead) (Match, bool) {
	c := keyBusiness(candidate)
	keys := make([]keyed, len(existing))
	for i, l := range existing {
		keys[i] = keyLead(l)
	}
	return m.match(c, keys)
}

// MatchPhones reports whether any of phones belongs to an existing lead. It
// covers numbers that only became known after analyzing a candidate's site.
func (m *Matcher) MatchPhones(phones []string, existing []lead.Lead) (Match, bool) {
	for _, raw := range phones {
		phone := NormalizePhone(raw)
		if phone == "" {
			continue
		}
		for _, l := range existing {
			if NormalizePhone(l.Phone) == phone {
				return Match{LeadID: l.ID, Reason: ReasonPhone, Similarity: 1}, true
			}
		}
	}
	return Match{}, false
}

func (m *Matcher) match(c keyed, existing []keyed) (Match, bool) {
	if c.domain != "" {
		for _, e := range existing {
			if e.domain == c.domain {
				return Match{LeadID: e.id, Reason: ReasonDomain, Similarity: 1}, true
			}
		}
	}
	if c.phone != "" {
		for _, e := range existing {
			if e.phone == c.phone {
				return Match{LeadID: e.id, Reason: ReasonPhone, Similarity: 1}, true
			}
		}
	}
	best := Match{}
	found := false
	for _, e := range existing {
		sim := NameSimilarity(c.name, e.name)
		if sim >= m.threshold && sim > best.Similarity {
			best = Match{LeadID: e.id, Reason: ReasonName, Similarity: sim}
			found = true
		}
	}
	return best, found
}

// Partition splits candidates into unique businesses and duplicates. Candidates are
// compared against existing leads and against earlier accepted candidates; the first
// occurrence wins.
func (m *Matcher) Partition(candidates []lead.Business, existing []lead.Lead) ([]lead.Business, []lead.Duplicate) {
	known := make([]keyed, 0, len(existing)+len(candidates))
	for _, l := range existing {
		known = append(known, keyLead(l))
	}
	unique := make([]lead.Business, 0, len(candidates))
	var dups []lead.Duplicate
	for _, cand := range candidates {
		k := keyBusiness(cand)
		if match, ok := m.match(k, known); ok {
			dups = append(dups, lead.Duplicate{
				Business:   cand,
				LeadID:     match.LeadID,
				Reason:     match.Reason,
				Similarity: match.Similarity,
			})
			continue
		}
		unique = append(unique, cand)
		known = append(known, k)
	}
	return unique, dups
}
