package analysis

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Rubric check names.
const (
	CheckHTTPS           = "https"
	CheckMobileViewport  = "mobile_viewport"
	CheckTitle           = "title"
	CheckMetaDescription = "meta_description"
	CheckHeading         = "heading"
	CheckContactInfo     = "contact_info"
	CheckCallToAction    = "call_to_action"
	CheckSocialLinks     = "social_links"
	CheckLoadTime        = "load_time"
	CheckPageWeight      = "page_weight"
	CheckFreshCopyright  = "fresh_copyright"
	CheckImageAlt        = "image_alt"
)

const (
	titleMin          = 10
	titleMax          = 70
	descriptionMin    = 50
	fastLoad          = 2 * time.Second
	acceptableLoad    = 5 * time.Second
	maxPageBytes      = 1536 * 1024
	altCoveragePct    = 80
	brokenStatusFloor = 400
)

// Input is everything the rubric looks at.
type Input struct {
	FinalURL   string
	StatusCode int
	HTML       []byte
	LoadTime   time.Duration
	// Now anchors the copyright freshness check.
	Now time.Time
}

// Scorecard is the rubric outcome for one page.
type Scorecard struct {
	Score       int
	Grade       string
	Opportunity lead.Opportunity
	Checks      []lead.Check
}

// Score applies the rubric to in. It never fails: unparsable HTML scores as
// an empty document.
func Score(in Input) Scorecard {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.HTML))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return score(in, doc)
}

func score(in Input, doc *goquery.Document) Scorecard {
	text := pageText(doc)
	checks := []lead.Check{
		checkHTTPS(in.FinalURL),
		checkViewport(doc),
		checkTitle(doc),
		checkDescription(doc),
		checkHeading(doc),
		checkContact(doc, text),
		checkCallToAction(doc),
		checkSocial(doc),
		checkLoadTime(in.LoadTime),
		checkPageWeight(len(in.HTML)),
		checkCopyright(text, in.Now),
		checkImageAlt(doc),
	}
	total := 0
	for _, c := range checks {
		total += c.Points
	}
	card := Scorecard{
		Score:       total,
		Grade:       GradeFor(total),
		Opportunity: OpportunityFor(total),
		Checks:      checks,
	}
	if in.StatusCode >= brokenStatusFloor {
		card.Grade = "F"
		card.Opportunity = lead.OpportunityHot
	}
	return card
}

// GradeFor maps a 0-100 score to a letter grade.
func GradeFor(score int) string {
	switch {
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 55:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

// OpportunityFor maps a score to sales heat; a weaker site is a hotter lead.
func OpportunityFor(score int) lead.Opportunity {
	switch {
	case score < 50:
		return lead.OpportunityHot
	case score < 75:
		return lead.OpportunityWarm
	default:
		return lead.OpportunityCold
	}
}

func pass(name string, points int, detail string) lead.Check {
	return lead.Check{Name: name, Passed: true, Points: points, MaxPoints: points, Detail: detail}
}

func partial(name string, points, maxPoints int, detail string) lead.Check {
	return lead.Check{Name: name, Points: points, MaxPoints: maxPoints, Detail: detail}
}

func fail(name string, maxPoints int, detail string) lead.Check {
	return lead.Check{Name: name, MaxPoints: maxPoints, Detail: detail}
}

func checkHTTPS(finalURL string) lead.Check {
	u, err := url.Parse(finalURL)
	if err == nil && strings.EqualFold(u.Scheme, "https") {
		return pass(CheckHTTPS, 15, "served over https")
	}
	return fail(CheckHTTPS, 15, "not served over https")
}

func checkViewport(doc *goquery.Document) lead.Check {
	content := strings.ToLower(metaContent(doc, "viewport"))
	if strings.Contains(strings.ReplaceAll(content, " ", ""), "width=device-width") {
		return pass(CheckMobileViewport, 15, content)
	}
	return fail(CheckMobileViewport, 15, "no responsive viewport meta tag")
}

func checkTitle(doc *goquery.Document) lead.Check {
	title := pageTitle(doc)
	n := utf8.RuneCountInString(title)
	switch {
	case n >= titleMin && n <= titleMax:
		return pass(CheckTitle, 10, title)
	case n > 0:
		return partial(CheckTitle, 5, 10, fmt.Sprintf("title length %d outside %d-%d", n, titleMin, titleMax))
	default:
		return fail(CheckTitle, 10, "missing title")
	}
}

func checkDescription(doc *goquery.Document) lead.Check {
	desc := strings.TrimSpace(metaContent(doc, "description"))
	n := utf8.RuneCountInString(desc)
	switch {
	case n >= descriptionMin:
		return pass(CheckMetaDescription, 10, fmt.Sprintf("%d characters", n))
	case n > 0:
		return partial(CheckMetaDescription, 5, 10, fmt.Sprintf("only %d characters", n))
	default:
		return fail(CheckMetaDescription, 10, "missing meta description")
	}
}

func checkHeading(doc *goquery.Document) lead.Check {
	found := false
	doc.Find("h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.TrimSpace(s.Text()) != ""
		return !found
	})
	if found {
		return pass(CheckHeading, 5, "h1 present")
	}
	return fail(CheckHeading, 5, "no h1 heading")
}

func checkContact(doc *goquery.Document, text string) lead.Check {
	if doc.Find(`a[href^="tel:"], a[href^="mailto:"]`).Length() > 0 {
		return pass(CheckContactInfo, 10, "contact link")
	}
	if len(findEmails(text)) > 0 || len(findPhones(text)) > 0 {
		return pass(CheckContactInfo, 10, "contact details in page text")
	}
	return fail(CheckContactInfo, 10, "no phone number or email")
}

var ctaPattern = regexp.MustCompile(`(?i)\b(contact|quote|book|call)`)

func checkCallToAction(doc *goquery.Document) lead.Check {
	if doc.Find("form").Length() > 0 {
		return pass(CheckCallToAction, 5, "form")
	}
	if doc.Find(`a[href^="tel:"]`).Length() > 0 {
		return pass(CheckCallToAction, 5, "click-to-call link")
	}
	found := ""
	doc.Find(`a, button, input[type="submit"], input[type="button"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.TrimSpace(s.Text())
		if label == "" {
			label, _ = s.Attr("value")
		}
		if ctaPattern.MatchString(label) {
			found = strings.TrimSpace(label)
			return false
		}
		return true
	})
	if found != "" {
		return pass(CheckCallToAction, 5, found)
	}
	return fail(CheckCallToAction, 5, "no call to action")
}

func checkSocial(doc *goquery.Document) lead.Check {
	if links := socialLinks(doc); len(links) > 0 {
		return pass(CheckSocialLinks, 5, strings.Join(links, ", "))
	}
	return fail(CheckSocialLinks, 5, "no social profile links")
}

func checkLoadTime(d time.Duration) lead.Check {
	detail := d.Round(time.Millisecond).String()
	switch {
	case d < fastLoad:
		return pass(CheckLoadTime, 10, detail)
	case d < acceptableLoad:
		return partial(CheckLoadTime, 5, 10, detail)
	default:
		return fail(CheckLoadTime, 10, detail)
	}
}

func checkPageWeight(n int) lead.Check {
	detail := strconv.Itoa(n) + " bytes"
	if n <= maxPageBytes {
		return pass(CheckPageWeight, 5, detail)
	}
	return fail(CheckPageWeight, 5, detail)
}

var copyrightPattern = regexp.MustCompile(`(?i)(?:©|\(c\)|copyright)[^0-9]{0,20}((?:19|20)\d{2})(?:\s*[-–]\s*((?:19|20)\d{2}))?`)

func checkCopyright(text string, now time.Time) lead.Check {
	newest := 0
	for _, m := range copyrightPattern.FindAllStringSubmatch(text, -1) {
		for _, group := range m[1:] {
			if year, err := strconv.Atoi(group); err == nil && year > newest {
				newest = year
			}
		}
	}
	if newest == 0 {
		return fail(CheckFreshCopyright, 5, "no copyright year")
	}
	detail := strconv.Itoa(newest)
	if newest >= now.Year()-1 {
		return pass(CheckFreshCopyright, 5, detail)
	}
	return fail(CheckFreshCopyright, 5, detail)
}

func checkImageAlt(doc *goquery.Document) lead.Check {
	imgs := doc.Find("img")
	total := imgs.Length()
	if total == 0 {
		return pass(CheckImageAlt, 5, "no images")
	}
	withAlt := 0
	imgs.Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			withAlt++
		}
	})
	detail := fmt.Sprintf("%d/%d images with alt text", withAlt, total)
	if withAlt*100 >= total*altCoveragePct {
		return pass(CheckImageAlt, 5, detail)
	}
	return fail(CheckImageAlt, 5, detail)
}
