package analysis

import (
	"bytes"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/leadscout/internal/dedup"
)

// Extraction is the contact and platform data pulled from a page.
type Extraction struct {
	Title        string
	Description  string
	Emails       []string
	Phones       []string
	SocialLinks  []string
	Technologies []string
}

// Extract parses page and pulls contact details, social profiles and
// platform markers out of it.
func Extract(page []byte) Extraction {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Extraction{}
	}
	return extract(doc, page)
}

func extract(doc *goquery.Document, page []byte) Extraction {
	text := pageText(doc)

	emails := findEmails(text)
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr, _, _ := strings.Cut(strings.TrimPrefix(href, "mailto:"), "?")
		emails = append(emails, findEmails(addr)...)
	})

	phones := findPhones(text)
	doc.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if p := dedup.NormalizePhone(strings.TrimPrefix(href, "tel:")); p != "" {
			phones = append(phones, p)
		}
	})

	return Extraction{
		Title:        pageTitle(doc),
		Description:  strings.TrimSpace(metaContent(doc, "description")),
		Emails:       uniq(emails),
		Phones:       uniq(phones),
		SocialLinks:  socialLinks(doc),
		Technologies: technologies(doc, page),
	}
}

func pageTitle(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

func metaContent(doc *goquery.Document, name string) string {
	content := ""
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if n, _ := s.Attr("name"); strings.EqualFold(strings.TrimSpace(n), name) {
			content, _ = s.Attr("content")
			return false
		}
		return true
	})
	return content
}

var skippedTextElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// pageText returns visible body text with one space between text nodes, so
// adjacent blocks such as <p>a@b.com</p><p>Call</p> stay separate words.
func pageText(doc *goquery.Document) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if _, skip := skippedTextElements[n.Data]; skip {
				return
			}
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Find("body").Nodes {
		walk(n)
	}
	return sb.String()
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".avif"}

func findEmails(text string) []string {
	var out []string
	for _, m := range emailPattern.FindAllString(text, -1) {
		addr := strings.ToLower(strings.Trim(m, "."))
		if slices.ContainsFunc(imageSuffixes, func(s string) bool { return strings.HasSuffix(addr, s) }) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func findPhones(text string) []string {
	return dedup.FindPhones(text)
}

var socialDomains = map[string]struct{}{
	"facebook.com":  {},
	"instagram.com": {},
	"linkedin.com":  {},
	"twitter.com":   {},
	"x.com":         {},
	"youtube.com":   {},
	"tiktok.com":    {},
}

func socialLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || u.Host == "" {
			return
		}
		if _, ok := socialDomains[dedup.NormalizeDomain(u.Host)]; !ok {
			return
		}
		path := strings.ToLower(u.Path)
		if strings.Contains(path, "share") || strings.Contains(path, "intent") {
			return
		}
		out = append(out, u.String())
	})
	return uniq(out)
}

type techMarker struct {
	name    string
	markers []string
}

var techMarkers = []techMarker{
	{name: "WordPress", markers: []string{"wp-content", "wp-includes", "wordpress"}},
	{name: "Wix", markers: []string{"wixstatic.com", "wix.com"}},
	{name: "Squarespace", markers: []string{"squarespace"}},
	{name: "Shopify", markers: []string{"cdn.shopify.com", "shopify"}},
	{name: "Webflow", markers: []string{"webflow", "data-wf-site", "website-files.com"}},
	{name: "GoDaddy", markers: []string{"godaddy", "img1.wsimg.com"}},
	{name: "Joomla", markers: []string{"joomla"}},
	{name: "Drupal", markers: []string{"drupal"}},
}

func technologies(doc *goquery.Document, page []byte) []string {
	var out []string
	lowerGen := strings.ToLower(metaContent(doc, "generator"))
	lowerHTML := bytes.ToLower(page)
	for _, tech := range techMarkers {
		for _, marker := range tech.markers {
			if strings.Contains(lowerGen, marker) || bytes.Contains(lowerHTML, []byte(marker)) {
				out = append(out, tech.name)
				break
			}
		}
	}
	if generator := strings.TrimSpace(metaContent(doc, "generator")); generator != "" && len(out) == 0 {
		out = append(out, strings.Fields(generator)[0])
	}
	slices.Sort(out)
	return out
}

func uniq(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
