// Package detector decides when a business website needs a headless render before scoring.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/leadscout/internal/lead"
)

const defaultMinVisibleText = 60

// Framework mount points that are empty until client-side code runs.
var mountSelectors = strings.Join([]string{
	"#__next",
	"#root",
	"#app",
	"#___gatsby",
	"[data-reactroot]",
	"app-root",
}, ", ")

var noscriptPhrases = []string{
	"enable javascript",
	"javascript is disabled",
	"javascript is required",
}

// Heuristic promotes pages whose static HTML has too little visible text to
// score, typically single-page-app shells and some site-builder templates.
type Heuristic struct {
	// MinVisibleText is the number of visible body characters below which a
	// script-driven page is rendered.
	MinVisibleText int
}

// NewHeuristic returns a detector. A non-positive minVisibleText uses 60.
func NewHeuristic(minVisibleText int) *Heuristic {
	if minVisibleText <= 0 {
		minVisibleText = defaultMinVisibleText
	}
	return &Heuristic{MinVisibleText: minVisibleText}
}

// ShouldPromote reports whether the probe body should be re-fetched headless.
// Only 200 responses qualify; error pages are scored as served.
func (h *Heuristic) ShouldPromote(resp lead.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}

	noscript := strings.ToLower(doc.Find("noscript").Text())
	for _, phrase := range noscriptPhrases {
		if strings.Contains(noscript, phrase) {
			return true
		}
	}

	scripts := doc.Find("script").Length()
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	visible := len(strings.Join(strings.Fields(body.Text()), " "))

	emptyMount := false
	doc.Find(mountSelectors).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == "" {
			emptyMount = true
			return false
		}
		return true
	})
	if emptyMount && visible < h.MinVisibleText*4 {
		return true
	}
	return scripts > 0 && visible < h.MinVisibleText
}
