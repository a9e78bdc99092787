package trawl

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor pulls discrete listing records out of one marketplace's
// search-results page shape. Detection is a pure URL test; extraction is
// side-effect-free, so a page may safely be offered to every extractor.
type Extractor interface {
	// Name identifies the marketplace shape in logs.
	Name() string
	// Detect reports whether the URL looks like this marketplace's
	// search/listing page.
	Detect(u *url.URL) bool
	// RequiresRender marks shapes whose result grids only populate after
	// client-side script execution. These render even when a run skips
	// rendering globally.
	RequiresRender() bool
	// Extract returns the listing items found in the parsed page. Hrefs
	// are resolved against base; unresolvable ones are discarded.
	Extract(doc *goquery.Document, base *url.URL) []ListingItem
}

// DefaultExtractors returns the known marketplace shapes in their
// canonical order.
func DefaultExtractors() []Extractor {
	return []Extractor{
		&ebayExtractor{},
		&amazonExtractor{},
		&etsyExtractor{},
		newAnchorExtractor("walmart", detectHostPath("walmart.com", "search"), true, "/ip/"),
		newAnchorExtractor("walgreens", detectHostPath("walgreens.com", "search/"), true, "/product/", "/c/", "/p/"),
		newAnchorExtractor("cvs", detectHostPath("cvs.com", "/search"), true, "/shop/", "/p/"),
		&targetExtractor{},
		newAnchorExtractor("bestbuy", detectHostPath("bestbuy.com", "searchpage.jsp"), true, "/site/"),
		&googleShoppingExtractor{},
	}
}

// ParsePage parses raw HTML into a goquery document. A parse failure
// yields a nil document; extractors treat that as "no listings".
func ParsePage(body []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	return doc
}

func hostMatches(host, suffix string) bool {
	host = strings.ToLower(host)
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

func detectHostPath(hostSuffix, pathNeedle string) func(*url.URL) bool {
	return func(u *url.URL) bool {
		if !hostMatches(u.Hostname(), hostSuffix) {
			return false
		}
		return strings.Contains(strings.ToLower(u.Path), strings.ToLower(pathNeedle))
	}
}

func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// flattenText collapses an element's text content to single-spaced form.
func flattenText(s *goquery.Selection) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s.Text(), " "))
}

// anchorTitle derives a display title for an anchor, preferring the
// accessible name over flattened text.
func anchorTitle(a *goquery.Selection) string {
	if label, ok := a.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
		return strings.TrimSpace(label)
	}
	if title, ok := a.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	return flattenText(a)
}

// anchorExtractor handles the marketplaces whose product links are
// recognizable purely by href shape: any anchor whose href contains one of
// the product path markers is a listing.
type anchorExtractor struct {
	name           string
	detect         func(*url.URL) bool
	requiresRender bool
	hrefNeedles    []string
}

func newAnchorExtractor(name string, detect func(*url.URL) bool, requiresRender bool, hrefNeedles ...string) *anchorExtractor {
	return &anchorExtractor{
		name:           name,
		detect:         detect,
		requiresRender: requiresRender,
		hrefNeedles:    hrefNeedles,
	}
}

func (e *anchorExtractor) Name() string          { return e.name }
func (e *anchorExtractor) Detect(u *url.URL) bool { return e.detect(u) }
func (e *anchorExtractor) RequiresRender() bool  { return e.requiresRender }

func (e *anchorExtractor) Extract(doc *goquery.Document, base *url.URL) []ListingItem {
	if doc == nil {
		return nil
	}
	var items []ListingItem
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !e.matchesHref(href) {
			return
		}
		abs, ok := resolveHref(base, href)
		if !ok {
			return
		}
		title := anchorTitle(a)
		card := flattenText(a)
		if title == "" && card == "" {
			return
		}
		items = append(items, ListingItem{Href: abs, Title: title, CardText: card})
	})
	return items
}

func (e *anchorExtractor) matchesHref(href string) bool {
	lower := strings.ToLower(href)
	for _, needle := range e.hrefNeedles {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
