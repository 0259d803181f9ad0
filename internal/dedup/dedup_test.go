package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"The Joe's Plumbing, LLC":   "joes plumbing",
		"Smith & Sons Co.":          "smith and sons",
		"Café  Délice":              "cafe delice",
		"ACME Corporation Inc":      "acme",
		"The":                       "the",
		"  Blue-Sky Roofing Ltd.  ": "blue sky roofing",
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizeName(in), in)
	}
}

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://www.acmeplumbing.com/contact": "acmeplumbing.com",
		"shop.acme.co.uk":                      "acme.co.uk",
		"HTTP://WWW.Example.ORG":               "example.org",
		"":                                     "",
		"http://":                              "",
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizeDomain(in), in)
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	require.Equal(t, "5125550100", NormalizePhone("(512) 555-0100"))
	require.Equal(t, "5125550100", NormalizePhone("+1 512.555.0100"))
	require.Equal(t, "", NormalizePhone("555-0100"))
}

func TestNameSimilarity(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, NameSimilarity("Acme Plumbing LLC", "acme plumbing"), 1e-9)
	require.InDelta(t, 1.0, NameSimilarity("Plumbing Acme", "Acme Plumbing"), 1e-9)
	require.Greater(t, NameSimilarity("Acme Plumbing", "Acme Plumbin"), 0.9)
	require.Less(t, NameSimilarity("Acme Plumbing", "Zenith Electric"), 0.5)
	require.Zero(t, NameSimilarity("", "Acme"))
}

func TestMatcherPrecedence(t *testing.T) {
	t.Parallel()

	m := NewMatcher(0)
	require.InDelta(t, DefaultThreshold, m.Threshold(), 1e-9)

	existing := []lead.Lead{
		{ID: "by-name", Name: "Acme Plumbing"},
		{ID: "by-phone", Name: "Other", Phone: "512-555-0100"},
		{ID: "by-domain", Name: "Different", Website: "https://acme.com"},
	}

	match, ok := m.Match(lead.Business{Name: "Acme Plumbing", Website: "http://www.acme.com/about", Phone: "5125550100"}, existing)
	require.True(t, ok)
	require.Equal(t, Match{LeadID: "by-domain", Reason: ReasonDomain, Similarity: 1}, match)

	match, ok = m.Match(lead.Business{Name: "Acme Plumbing", Phone: "1 (512) 555 0100"}, existing)
	require.True(t, ok)
	require.Equal(t, ReasonPhone, match.Reason)
	require.Equal(t, "by-phone", match.LeadID)

	match, ok = m.Match(lead.Business{Name: "The Acme Plumbing Co"}, existing)
	require.True(t, ok)
	require.Equal(t, ReasonName, match.Reason)
	require.Equal(t, "by-name", match.LeadID)

	_, ok = m.Match(lead.Business{Name: "Zenith Electric", Website: "zenith.io"}, existing)
	require.False(t, ok)
}

func TestPartition(t *testing.T) {
	t.Parallel()

	m := NewMatcher(0.9)
	existing := []lead.Lead{{ID: "l1", Name: "Acme Plumbing", Website: "acme.com"}}
	candidates := []lead.Business{
		{Name: "Acme Plumbing & Drain", Website: "https://acme.com"},
		{Name: "Zenith Electric", Website: "https://zenith.io"},
		{Name: "Zenith Electric LLC", Phone: "512 555 0199"},
		{Name: "Blue Sky Roofing", Website: "blueskyroof.com"},
	}

	unique, dups := m.Partition(candidates, existing)
	require.Len(t, unique, 2)
	require.Equal(t, "Zenith Electric", unique[0].Name)
	require.Equal(t, "Blue Sky Roofing", unique[1].Name)

	require.Len(t, dups, 2)
	require.Equal(t, "l1", dups[0].LeadID)
	require.Equal(t, ReasonDomain, dups[0].Reason)
	require.Empty(t, dups[1].LeadID)
	require.Equal(t, ReasonName, dups[1].Reason)
}

func TestFindPhones(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"5125550100", "5125550199"}, FindPhones("Call (512) 555-0100 or +1 512.555.0199 today"))
	require.Empty(t, FindPhones("Open since 1990, zip 78701"))
}

func TestMatcherMatchPhones(t *testing.T) {
	t.Parallel()

	existing := []lead.Lead{
		{ID: "lead-1", Name: "Acme Plumbing", Phone: "(512) 555-0100"},
		{ID: "lead-2", Name: "Zed Pipes"},
	}
	m := NewMatcher(0)

	got, ok := m.MatchPhones([]string{"garbage", "+1 512 555 0100"}, existing)
	require.True(t, ok)
	require.Equal(t, Match{LeadID: "lead-1", Reason: ReasonPhone, Similarity: 1}, got)

	_, ok = m.MatchPhones([]string{"5125550199"}, existing)
	require.False(t, ok)
	_, ok = m.MatchPhones(nil, existing)
	require.False(t, ok)
}
