package trawl

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ebayExtractor handles eBay search-results pages (/sch/). Listings live
// in li.s-item cards with a dedicated product link and title element.
type ebayExtractor struct{}

func (ebayExtractor) Name() string         { return "ebay" }
func (ebayExtractor) RequiresRender() bool { return false }

func (ebayExtractor) Detect(u *url.URL) bool {
	if !hostMatches(u.Hostname(), "ebay.com") {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path+"?"+u.RawQuery), "/sch/")
}

func (ebayExtractor) Extract(doc *goquery.Document, base *url.URL) []ListingItem {
	if doc == nil {
		return nil
	}
	var items []ListingItem
	doc.Find("li.s-item").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a.s-item__link").First().Attr("href")
		if !ok {
			card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
				candidate, _ := a.Attr("href")
				if abs, resolved := resolveHref(base, candidate); resolved && strings.Contains(strings.ToLower(abs), "/itm/") {
					href = candidate
					ok = true
					return false
				}
				return true
			})
		}
		if !ok {
			return
		}
		abs, resolved := resolveHref(base, href)
		if !resolved {
			return
		}
		title := flattenText(card.Find("h3.s-item__title").First())
		if title == "" {
			title = flattenText(card.Find(`span[role="heading"]`).First())
		}
		if title == "" {
			title = flattenText(card.Find("div.s-item__title").First())
		}
		cardText := flattenText(card)
		if title == "" && cardText == "" {
			return
		}
		items = append(items, ListingItem{Href: abs, Title: title, CardText: cardText})
	})
	return items
}

// amazonExtractor handles Amazon search-results pages (?k=). Result cards
// carry the s-result-item class; product links point at /dp/ or /gp/.
type amazonExtractor struct{}

func (amazonExtractor) Name() string         { return "amazon" }
func (amazonExtractor) RequiresRender() bool { return false }

func (amazonExtractor) Detect(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if !strings.HasPrefix(host, "amazon.") && !strings.Contains(host, ".amazon.") {
		return false
	}
	return u.Query().Get("k") != ""
}

func (amazonExtractor) Extract(doc *goquery.Document, base *url.URL) []ListingItem {
	if doc == nil {
		return nil
	}
	var items []ListingItem
	doc.Find("div.s-result-item").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(`a[href*="/dp/"]`).First().Attr("href")
		if !ok {
			href, ok = card.Find(`a[href*="/gp/"]`).First().Attr("href")
		}
		if !ok {
			return
		}
		abs, resolved := resolveHref(base, href)
		if !resolved {
			return
		}
		title := flattenText(card.Find("h2 a span").First())
		if title == "" {
			title = flattenText(card.Find("span.a-size-medium").First())
		}
		cardText := flattenText(card)
		if title == "" && cardText == "" {
			return
		}
		items = append(items, ListingItem{Href: abs, Title: title, CardText: cardText})
	})
	return items
}

// etsyExtractor handles Etsy search pages. Every listing card is an
// anchor to /listing/ wrapping the card markup.
type etsyExtractor struct{}

func (etsyExtractor) Name() string         { return "etsy" }
func (etsyExtractor) RequiresRender() bool { return false }

func (etsyExtractor) Detect(u *url.URL) bool {
	return hostMatches(u.Hostname(), "etsy.com") && strings.Contains(strings.ToLower(u.Path), "search")
}

func (etsyExtractor) Extract(doc *goquery.Document, base *url.URL) []ListingItem {
	if doc == nil {
		return nil
	}
	var items []ListingItem
	doc.Find(`a[href*="/listing/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs, resolved := resolveHref(base, href)
		if !resolved {
			return
		}
		title := flattenText(a.Find("h3.v2-listing-card__title").First())
		if title == "" {
			title = flattenText(a.Find("h3").First())
		}
		if title == "" {
			title = flattenText(a.Find("span.text-body").First())
		}
		cardText := flattenText(a)
		if title == "" && cardText == "" {
			return
		}
		items = append(items, ListingItem{Href: abs, Title: title, CardText: cardText})
	})
	return items
}

// targetExtractor handles Target search pages: a path ending in /s or a
// searchTerm query parameter. Product hrefs use /p/ or /A- conventions.
type targetExtractor struct{}

func (targetExtractor) Name() string         { return "target" }
func (targetExtractor) RequiresRender() bool { return true }

func (targetExtractor) Detect(u *url.URL) bool {
	if !hostMatches(u.Hostname(), "target.com") {
		return false
	}
	path := strings.TrimSuffix(strings.ToLower(u.Path), "/")
	if strings.HasSuffix(path, "/s") || path == "s" {
		return true
	}
	return u.Query().Get("searchTerm") != ""
}

func (targetExtractor) Extract(doc *goquery.Document, base *url.URL) []ListingItem {
	return extractByHref(doc, base, "/p/", "/a-")
}

// googleShoppingExtractor handles Google Shopping results
// (google.<tld>/search?tbm=shop). Product hrefs route through /shopping/
// or ad click-through /aclk paths.
type googleShoppingExtractor struct{}

var googleHost = regexp.MustCompile(`(^|\.)google\.[a-z.]+$`)

func (googleShoppingExtractor) Name() string         { return "google-shopping" }
func (googleShoppingExtractor) RequiresRender() bool { return true }

func (googleShoppingExtractor) Detect(u *url.URL) bool {
	if !googleHost.MatchString(strings.ToLower(u.Hostname())) {
		return false
	}
	if !strings.Contains(strings.ToLower(u.Path), "/search") {
		return false
	}
	return u.Query().Get("tbm") == "shop"
}

func (googleShoppingExtractor) Extract(doc *goquery.Document, base *url.URL) []ListingItem {
	return extractByHref(doc, base, "/shopping/", "/aclk")
}

func extractByHref(doc *goquery.Document, base *url.URL, needles ...string) []ListingItem {
	if doc == nil {
		return nil
	}
	var items []ListingItem
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		lower := strings.ToLower(href)
		matched := false
		for _, needle := range needles {
			if strings.Contains(lower, needle) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}
		abs, resolved := resolveHref(base, href)
		if !resolved {
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
