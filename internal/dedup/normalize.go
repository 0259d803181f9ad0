// Package dedup detects businesses that duplicate existing leads.
package dedup

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = map[string]struct{}{
	"llc":         {},
	"inc":         {},
	"co":          {},
	"corp":        {},
	"corporation": {},
	"company":     {},
	"ltd":         {},
	"pllc":        {},
	"lp":          {},
	"llp":         {},
}

// NormalizeName folds a business name into a comparison key.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	stripped = cases.Fold().String(stripped)
	stripped = strings.ReplaceAll(stripped, "&", " and ")

	var b strings.Builder
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// apostrophes join words ("joe's" -> "joes")
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	if len(fields) > 1 && fields[0] == "the" {
		fields = fields[1:]
	}
	for len(fields) > 1 {
		if _, ok := legalSuffixes[fields[len(fields)-1]]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// NormalizeDomain reduces a website to its registrable domain.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

var phonePattern = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\b[2-9]\d{2}\)?[\s.\-]?[2-9]\d{2}[\s.\-]?\d{4}\b`)

// FindPhones returns every North-American phone number in text, normalized
// with NormalizePhone, in order of appearance.
func FindPhones(text string) []string {
	var out []string
	for _, m := range phonePattern.FindAllString(text, -1) {
		if p := NormalizePhone(m); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizePhone keeps the ten national digits of a North-American number.
func NormalizePhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < 10 {
		return ""
	}
	return string(digits)
}
