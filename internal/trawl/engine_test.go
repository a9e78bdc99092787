package trawl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSources struct {
	competitors []Competitor
	keywords    []string
	images      []ImageRecord
	err         error
}

func (s *stubSources) Competitors(context.Context) ([]Competitor, error) {
	return s.competitors, s.err
}

func (s *stubSources) Keywords(context.Context) ([]string, error) {
	return s.keywords, s.err
}

func (s *stubSources) Images(context.Context) ([]ImageRecord, error) {
	return s.images, s.err
}

// mapFetcher serves canned pages by URL and counts fetches.
type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls int
}

func (f *mapFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[rawURL]; ok {
		return Page{}, err
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return Page{StatusCode: 404}, nil
	}
	return Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *mapFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *mapFetcher) factory() FetcherFactory {
	return func(FetchConfig, *zap.Logger) (Fetcher, error) {
		return f, nil
	}
}

// stubRenderer serves canned rendered pages and records usage.
type stubRenderer struct {
	text    string
	html    string
	err     error
	created atomic.Int32
	renders atomic.Int32
	closes  atomic.Int32
}

func (r *stubRenderer) Render(context.Context, string, time.Duration) (RenderedPage, error) {
	r.renders.Add(1)
	if r.err != nil {
		return RenderedPage{}, r.err
	}
	return RenderedPage{Text: r.text, HTML: []byte(r.html)}, nil
}

func (r *stubRenderer) Close(context.Context) error {
	r.closes.Add(1)
	return nil
}

func (r *stubRenderer) factory() RendererFactory {
	return func(RenderConfig, *zap.Logger) (Renderer, error) {
		r.created.Add(1)
		return r, nil
	}
}

// slowFetcher delays every fetch so a run can outlive its deadline.
type slowFetcher struct {
	inner *mapFetcher
	delay time.Duration
}

func (f *slowFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	time.Sleep(f.delay)
	return f.inner.Fetch(ctx, rawURL)
}

func (f *slowFetcher) factory() FetcherFactory {
	return func(FetchConfig, *zap.Logger) (Fetcher, error) {
		return f, nil
	}
}

func newTestEngine(sources *stubSources, fetcher *mapFetcher, renderer *stubRenderer) *Engine {
	return NewEngine(EngineConfig{
		Competitors: sources,
		Keywords:    sources,
		Images:      sources,
		NewFetcher:  fetcher.factory(),
		NewRenderer: renderer.factory(),
		Logger:      zap.NewNop(),
	})
}

func TestRunStaticMatch(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{{Name: "Acme", URL: "https://acme.test/shop"}},
		keywords:    []string{"gold shilajit"},
	}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://acme.test/shop": `<html><body><p>Premium Gold Shilajit resin, now in stock.</p></body></html>`,
	}}
	renderer := &stubRenderer{}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(), RunParams{SiteIndex: -1})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, "Acme", res.Company)
	assert.Equal(t, "gold shilajit", res.Keyword)
	assert.Equal(t, "https://acme.test/shop", res.URL)
	assert.Contains(t, res.Context, "gold shilajit")

	assert.Equal(t, 1, report.Meta.SitesProcessed)
	assert.Equal(t, 0, report.Meta.SitesFailed)
	assert.Equal(t, 0, report.Meta.PagesRendered)
	assert.Equal(t, int32(0), renderer.created.Load(), "no render when the static pass matched")
	assert.NotEmpty(t, report.Meta.RunID)
}

func TestRunRenderFallback(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{{Name: "Acme", URL: "https://acme.test/shop"}},
		keywords:    []string{"gold shilajit"},
	}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://acme.test/shop": `<html><body><div id="app"></div></body></html>`,
	}}
	renderer := &stubRenderer{
		text: "Finest gold shilajit straight from the mountains",
		html: "<html><body><p>Finest gold shilajit</p></body></html>",
	}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(), RunParams{SiteIndex: -1})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, "https://acme.test/shop", report.Results[0].URL)
	assert.Equal(t, 1, report.Meta.PagesRendered)
	assert.Equal(t, int32(1), renderer.closes.Load(), "renderer closed exactly once")
}

func TestRunSkipRenderSuppressesFallback(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{{Name: "Acme", URL: "https://acme.test/shop"}},
		keywords:    []string{"gold shilajit"},
	}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://acme.test/shop": `<html><body><p>nothing relevant</p></body></html>`,
	}}
	renderer := &stubRenderer{text: "gold shilajit everywhere"}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(),
		RunParams{SiteIndex: -1, SkipRender: true})
	require.NoError(t, err)

	assert.Empty(t, report.Results)
	assert.Equal(t, int32(0), renderer.created.Load())
}

func TestRunRenderAlwaysShapeOverridesSkip(t *testing.T) {
	t.Parallel()

	searchURL := "https://www.walmart.com/search?q=shilajit"
	sources := &stubSources{
		competitors: []Competitor{{Name: "Walmart", URL: searchURL}},
		keywords:    []string{"gold shilajit"},
	}
	fetcher := &mapFetcher{pages: map[string]string{
		searchURL: `<html><body><div id="results"></div></body></html>`,
	}}
	renderer := &stubRenderer{
		text: "no phrase here",
		html: `<html><body><a href="/ip/gold-shilajit/1">Gold Shilajit Jar</a></body></html>`,
	}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(),
		RunParams{SiteIndex: -1, SkipRender: true})
	require.NoError(t, err)

	assert.Equal(t, int32(1), renderer.renders.Load(), "render-always shape renders despite skipRender")
	require.Len(t, report.Results, 1)
	assert.Equal(t, "https://www.walmart.com/ip/gold-shilajit/1", report.Results[0].URL)
	assert.Equal(t, "Gold Shilajit Jar", report.Results[0].Context)
}

func TestRunListingResultsPrecedeWholePage(t *testing.T) {
	t.Parallel()

	searchURL := "https://www.ebay.com/sch/i.html?_nkw=shilajit"
	sources := &stubSources{
		competitors: []Competitor{{Name: "eBay", URL: searchURL}},
		keywords:    []string{"gold shilajit"},
	}
	fetcher := &mapFetcher{pages: map[string]string{
		searchURL: `<html><body><ul>
			<li class="s-item">
				<a class="s-item__link" href="https://www.ebay.com/itm/1">x</a>
				<h3 class="s-item__title">Pure Gold Shilajit Resin</h3>
			</li>
		</ul></body></html>`,
	}}
	renderer := &stubRenderer{}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(), RunParams{SiteIndex: -1})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "https://www.ebay.com/itm/1", report.Results[0].URL, "listing hit first")
	assert.Equal(t, "Pure Gold Shilajit Resin", report.Results[0].Context)
	assert.Equal(t, searchURL, report.Results[1].URL, "whole-page hit second")
}

func TestRunSiteFailureIsIsolated(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{
			{Name: "Down", URL: "https://down.test/"},
			{Name: "Up", URL: "https://up.test/"},
		},
		keywords: []string{"gold shilajit"},
	}
	fetcher := &mapFetcher{
		pages: map[string]string{
			"https://up.test/": `<p>gold shilajit</p>`,
		},
		errs: map[string]error{
			"https://down.test/": errors.New("connection refused"),
		},
	}
	renderer := &stubRenderer{}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(),
		RunParams{SiteIndex: -1, SkipRender: true})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Meta.SitesProcessed)
	assert.Equal(t, 1, report.Meta.SitesFailed)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "Up", report.Results[0].Company)
}

func TestRunSiteSelection(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{
			{Name: "A", URL: "https://a.test/"},
			{Name: "B", URL: "https://b.test/"},
			{Name: "C", URL: "https://c.test/"},
		},
		keywords: []string{"gold"},
	}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://a.test/": `<p>nothing</p>`,
		"https://b.test/": `<p>gold</p>`,
		"https://c.test/": `<p>nothing</p>`,
	}}
	renderer := &stubRenderer{}

	engine := newTestEngine(sources, fetcher, renderer)

	report, err := engine.Run(context.Background(), RunParams{SiteIndex: 1, SkipRender: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Meta.SitesProcessed)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "B", report.Results[0].Company)

	report, err = engine.Run(context.Background(), RunParams{SiteIndex: -1, MaxSites: 2, SkipRender: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Meta.SitesProcessed)
}

func TestRunDeadlineStopsDispatch(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{
			{Name: "A", URL: "https://a.test/"},
			{Name: "B", URL: "https://b.test/"},
			{Name: "C", URL: "https://c.test/"},
		},
		keywords: []string{"gold"},
	}
	inner := &mapFetcher{pages: map[string]string{
		"https://a.test/": `<p>gold</p>`,
		"https://b.test/": `<p>gold</p>`,
		"https://c.test/": `<p>gold</p>`,
	}}
	fetcher := &slowFetcher{inner: inner, delay: 1600 * time.Millisecond}
	renderer := &stubRenderer{}

	engine := NewEngine(EngineConfig{
		Competitors: sources,
		Keywords:    sources,
		NewFetcher:  fetcher.factory(),
		NewRenderer: renderer.factory(),
		Logger:      zap.NewNop(),
	})

	// With one site per batch and 1.6s per fetch, the third batch check
	// lands past the 3s deadline: two sites complete, the last is skipped.
	report, err := engine.Run(context.Background(), RunParams{
		SiteIndex:   -1,
		SkipRender:  true,
		Concurrency: 1,
		Deadline:    3 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Meta.SitesProcessed)
	assert.Equal(t, 1, report.Meta.SitesSkipped)
	assert.Equal(t, 2, inner.fetchCount(), "the skipped site is never fetched")

	require.Len(t, report.Results, 2, "completed batches keep their results")
	companies := []string{report.Results[0].Company, report.Results[1].Company}
	assert.ElementsMatch(t, []string{"A", "B"}, companies)
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{{Name: "Acme", URL: "https://acme.test/"}},
		keywords:    []string{"gold"},
	}
	fetcher := &mapFetcher{}
	renderer := &stubRenderer{}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(),
		RunParams{SiteIndex: -1, DryRun: true})
	require.NoError(t, err)

	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.Meta.SitesProcessed)
	assert.Equal(t, 0, fetcher.fetchCount())
}

func TestRunDegradesOnUnreadableSources(t *testing.T) {
	t.Parallel()

	sources := &stubSources{err: errors.New("disk gone")}
	fetcher := &mapFetcher{}
	renderer := &stubRenderer{}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(), RunParams{SiteIndex: -1})
	require.NoError(t, err, "unreadable stores degrade to an empty run")
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.Meta.SitesProcessed)
}

func TestRunLimitKeywords(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{{Name: "Acme", URL: "https://acme.test/"}},
		keywords:    []string{"silver", "gold"},
	}
	fetcher := &mapFetcher{pages: map[string]string{
		"https://acme.test/": `<p>gold</p>`,
	}}
	renderer := &stubRenderer{}

	report, err := newTestEngine(sources, fetcher, renderer).Run(context.Background(),
		RunParams{SiteIndex: -1, LimitKeywords: 1, SkipRender: true})
	require.NoError(t, err)
	assert.Empty(t, report.Results, "only the first phrase is compiled")
}

func TestSelfTest(t *testing.T) {
	t.Parallel()

	engine := NewEngine(EngineConfig{Logger: zap.NewNop()})
	results := engine.SelfTest()
	require.Len(t, results, 4)
	for _, res := range results {
		assert.True(t, res.Match, "phrase %q should match the built-in sentence", res.Keyword)
	}
}

func TestInfo(t *testing.T) {
	t.Parallel()

	sources := &stubSources{
		competitors: []Competitor{
			{Name: "A", URL: "https://a.test/"},
			{Name: "B", URL: "https://b.test/"},
			{Name: "C", URL: "https://c.test/"},
			{Name: "D", URL: "https://d.test/"},
		},
		keywords: []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"},
	}
	engine := NewEngine(EngineConfig{
		Competitors: sources,
		Keywords:    sources,
		Logger:      zap.NewNop(),
	})

	info := engine.Info(context.Background())
	assert.Equal(t, 4, info.CompetitorsCount)
	assert.Equal(t, 7, info.KeywordsCount)
	assert.Len(t, info.FirstCompetitors, 3)
	assert.Len(t, info.SampleKeywords, 5)
}

func TestEffectiveSites(t *testing.T) {
	t.Parallel()

	sites := []Competitor{{Name: "A"}, {Name: "B"}, {Name: "C"}}

	assert.Len(t, effectiveSites(sites, RunParams{SiteIndex: -1}), 3)
	assert.Equal(t, "B", effectiveSites(sites, RunParams{SiteIndex: 1})[0].Name)
	assert.Len(t, effectiveSites(sites, RunParams{SiteIndex: -1, MaxSites: 2}), 2)
	assert.Len(t, effectiveSites(sites, RunParams{SiteIndex: 9, MaxSites: 0}), 3,
		"out-of-range index falls back to the full list")
}

func TestTimeoutClamps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, navTimeout(time.Second))
	assert.Equal(t, 12*time.Second, navTimeout(12*time.Second))
	assert.Equal(t, 20*time.Second, navTimeout(time.Minute))

	assert.Equal(t, 3*time.Second, imageTimeout(3*time.Second))
	assert.Equal(t, 8*time.Second, imageTimeout(30*time.Second))
}
