package trawl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDetectMarketplaces(t *testing.T) {
	t.Parallel()

	byName := make(map[string]Extractor)
	for _, ex := range DefaultExtractors() {
		byName[ex.Name()] = ex
	}

	tests := []struct {
		extractor string
		rawURL    string
		want      bool
	}{
		{"ebay", "https://www.ebay.com/sch/i.html?_nkw=shilajit", true},
		{"ebay", "https://www.ebay.com/itm/12345", false},
		{"amazon", "https://www.amazon.com/s?k=shilajit+gold", true},
		{"amazon", "https://www.amazon.co.uk/s?k=shilajit", true},
		{"amazon", "https://www.amazon.com/dp/B00TEST", false},
		{"etsy", "https://www.etsy.com/search?q=shilajit", true},
		{"walmart", "https://www.walmart.com/search?q=shilajit", true},
		{"walmart", "https://www.walmart.com/ip/12345", false},
		{"walgreens", "https://www.walgreens.com/search/results.jsp?Ntt=shilajit", true},
		{"cvs", "https://www.cvs.com/search?searchTerm=shilajit", true},
		{"target", "https://www.target.com/s?searchTerm=shilajit", true},
		{"target", "https://www.target.com/c/vitamins/s", true},
		{"target", "https://www.target.com/p/item/A-12345", false},
		{"bestbuy", "https://www.bestbuy.com/site/searchpage.jsp?st=shilajit", true},
		{"google-shopping", "https://www.google.com/search?q=shilajit&tbm=shop", true},
		{"google-shopping", "https://www.google.com/search?q=shilajit", false},
		{"google-shopping", "https://www.google.co.uk/search?q=shilajit&tbm=shop", true},
		{"google-shopping", "https://notgoogle.com/search?tbm=shop", false},
	}

	for _, tt := range tests {
		ex, ok := byName[tt.extractor]
		require.True(t, ok, "unknown extractor %q", tt.extractor)
		assert.Equal(t, tt.want, ex.Detect(mustURL(t, tt.rawURL)), "%s on %s", tt.extractor, tt.rawURL)
	}
}

func TestEbayExtract(t *testing.T) {
	t.Parallel()

	html := `<html><body><ul>
		<li class="s-item">
			<a class="s-item__link" href="https://www.ebay.com/itm/111">item</a>
			<h3 class="s-item__title">Pure Gold Shilajit Resin</h3>
		</li>
		<li class="s-item">
			<a href="/itm/222">fallback link</a>
			<span role="heading">Shilajit Gummies 60ct</span>
		</li>
		<li class="s-item"><p>no link here</p></li>
	</ul></body></html>`

	doc := ParsePage([]byte(html))
	require.NotNil(t, doc)
	base := mustURL(t, "https://www.ebay.com/sch/i.html?_nkw=shilajit")

	items := (ebayExtractor{}).Extract(doc, base)
	require.Len(t, items, 2)
	assert.Equal(t, "https://www.ebay.com/itm/111", items[0].Href)
	assert.Equal(t, "Pure Gold Shilajit Resin", items[0].Title)
	assert.Equal(t, "https://www.ebay.com/itm/222", items[1].Href)
	assert.Equal(t, "Shilajit Gummies 60ct", items[1].Title)
}

func TestAmazonExtract(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<div class="s-result-item">
			<h2><a href="/dp/B001"><span>Shilajit Resin with Gold</span></a></h2>
		</div>
		<div class="s-result-item">
			<a href="/gp/product/B002">alt path</a>
			<span class="a-size-medium">Himalayan Shilajit Capsules</span>
		</div>
		<div class="s-result-item"><p>sponsored placeholder</p></div>
	</body></html>`

	doc := ParsePage([]byte(html))
	require.NotNil(t, doc)
	base := mustURL(t, "https://www.amazon.com/s?k=shilajit")

	items := (amazonExtractor{}).Extract(doc, base)
	require.Len(t, items, 2)
	assert.Equal(t, "https://www.amazon.com/dp/B001", items[0].Href)
	assert.Equal(t, "Shilajit Resin with Gold", items[0].Title)
	assert.Equal(t, "https://www.amazon.com/gp/product/B002", items[1].Href)
	assert.Equal(t, "Himalayan Shilajit Capsules", items[1].Title)
}

func TestAnchorExtractorResolvesAndTitles(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/ip/gold-shilajit/123" aria-label="Gold Shilajit Jar">card text here</a>
		<a href="/ip/other/456" title="Other Product">text</a>
		<a href="/ip/empty/789"></a>
		<a href="/account/settings">not a listing</a>
		<a href="javascript:void(0)">ignored scheme</a>
	</body></html>`

	doc := ParsePage([]byte(html))
	require.NotNil(t, doc)
	base := mustURL(t, "https://www.walmart.com/search?q=shilajit")

	walmart := newAnchorExtractor("walmart", detectHostPath("walmart.com", "search"), true, "/ip/")
	items := walmart.Extract(doc, base)
	require.Len(t, items, 2)
	assert.Equal(t, "https://www.walmart.com/ip/gold-shilajit/123", items[0].Href)
	assert.Equal(t, "Gold Shilajit Jar", items[0].Title, "aria-label wins")
	assert.Equal(t, "card text here", items[0].CardText)
	assert.Equal(t, "Other Product", items[1].Title, "title attribute is second choice")
}

func TestExtractByHrefSkipsUnresolvable(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/p/shilajit-gold/A-100">Shilajit Gold</a>
		<a href="mailto:sales@example.com/p/">not http</a>
	</body></html>`

	doc := ParsePage([]byte(html))
	require.NotNil(t, doc)
	base := mustURL(t, "https://www.target.com/s?searchTerm=shilajit")

	items := (targetExtractor{}).Extract(doc, base)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.target.com/p/shilajit-gold/A-100", items[0].Href)
}

func TestParsePageHandlesEmptyBody(t *testing.T) {
	t.Parallel()

	doc := ParsePage(nil)
	require.NotNil(t, doc, "empty body still parses to an empty document")
	assert.Empty(t, (etsyExtractor{}).Extract(doc, mustURL(t, "https://www.etsy.com/search?q=x")))
}
