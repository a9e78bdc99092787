package trawl

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simmonsip/trawler/internal/match"
	"github.com/simmonsip/trawler/internal/textnorm"
)

// CompetitorSource supplies the sites to scan.
type CompetitorSource interface {
	Competitors(ctx context.Context) ([]Competitor, error)
}

// KeywordSource supplies the phrases to scan for.
type KeywordSource interface {
	Keywords(ctx context.Context) ([]string, error)
}

// ImageSource supplies the stored reference-image fingerprints.
type ImageSource interface {
	Images(ctx context.Context) ([]ImageRecord, error)
}

// EngineConfig wires an Engine. Zero-valued optional fields fall back to
// the production implementations.
type EngineConfig struct {
	Competitors CompetitorSource
	Keywords    KeywordSource
	Images      ImageSource

	// Extractors defaults to DefaultExtractors.
	Extractors []Extractor
	// Match configures phrase compilation (gap bound, synonym table).
	Match match.Options

	UserAgent string
	// DomainQPS caps static-fetch request rate per host; zero disables.
	DomainQPS float64
	// MaxRetries and InitialBackoff govern the static fetch retry layer.
	MaxRetries     int
	InitialBackoff time.Duration

	// NewFetcher defaults to NewCollyFetcher.
	NewFetcher FetcherFactory
	// NewRenderer defaults to NewChromedpRenderer.
	NewRenderer RendererFactory

	Metrics *Metrics
	Logger  *zap.Logger
}

// DefaultUserAgent is the browser identity presented on every request.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Engine drives trawl runs. It is safe for concurrent use; every Run is
// an independent request-scoped computation.
type Engine struct {
	cfg EngineConfig
}

// NewEngine builds an Engine, filling config defaults.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Extractors == nil {
		cfg.Extractors = DefaultExtractors()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 400 * time.Millisecond
	}
	if cfg.NewFetcher == nil {
		cfg.NewFetcher = NewCollyFetcher
	}
	if cfg.NewRenderer == nil {
		cfg.NewRenderer = NewChromedpRenderer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{cfg: cfg}
}

type compiledKeyword struct {
	phrase  string
	matcher match.Matcher
}

// runState carries the mutable pieces of one run. The compiled keyword
// set and stored fingerprints are read-only once the run starts.
type runState struct {
	engine   *Engine
	params   RunParams
	started  time.Time
	keywords []compiledKeyword
	stored   []ImageRecord
	fetcher  Fetcher
	images   *ImageMatcher

	rendererOnce sync.Once
	renderer     Renderer
	rendererErr  error

	mu             sync.Mutex
	results        []MatchResult
	outcomes       []SiteOutcome
	sitesProcessed int
	sitesFailed    int
	sitesSkipped   int
	pagesRendered  int
}

// Run executes one trawl over the configured competitor list.
func (e *Engine) Run(ctx context.Context, params RunParams) (RunReport, error) {
	params = params.Defaults()
	started := time.Now()
	runID := uuid.NewString()
	logger := e.cfg.Logger.With(zap.String("run_id", runID))
	e.cfg.Metrics.runsStarted.Inc()

	report := RunReport{
		Results: []MatchResult{},
		Meta: RunMetadata{
			RunID:          runID,
			DeadlineMs:     params.Deadline.Milliseconds(),
			FetchTimeoutMs: params.FetchTimeout.Milliseconds(),
			Concurrency:    params.Concurrency,
		},
	}

	if params.DryRun {
		report.Meta.ElapsedMs = time.Since(started).Milliseconds()
		e.cfg.Metrics.runsCompleted.WithLabelValues("dry").Inc()
		return report, nil
	}

	keywords := e.loadKeywords(ctx, params, logger)
	sites := e.loadCompetitors(ctx, logger)
	var stored []ImageRecord
	if params.IncludeImages {
		stored = e.loadImages(ctx, logger)
	}

	sites = effectiveSites(sites, params)

	fetcher, err := e.cfg.NewFetcher(FetchConfig{
		UserAgent: e.cfg.UserAgent,
		Timeout:   params.FetchTimeout,
		DomainQPS: e.cfg.DomainQPS,
	}, logger)
	if err != nil {
		e.cfg.Metrics.runsCompleted.WithLabelValues("error").Inc()
		return report, err
	}

	st := &runState{
		engine:   e,
		params:   params,
		started:  started,
		keywords: keywords,
		stored:   stored,
		fetcher:  WithRetry(fetcher, e.cfg.MaxRetries, e.cfg.InitialBackoff, logger),
		images:   NewImageMatcher(imageTimeout(params.FetchTimeout), e.cfg.UserAgent, logger),
	}
	defer st.closeRenderer(logger)

	for i := 0; i < len(sites); i += params.Concurrency {
		if time.Since(started) > params.Deadline {
			st.markSkipped(sites[i:], "run deadline exceeded")
			logger.Warn("run deadline exceeded, skipping remaining sites",
				zap.Int("skipped", len(sites)-i))
			break
		}
		end := i + params.Concurrency
		if end > len(sites) {
			end = len(sites)
		}
		var wg sync.WaitGroup
		for _, comp := range sites[i:end] {
			wg.Add(1)
			go func(c Competitor) {
				defer wg.Done()
				st.processSite(ctx, c, logger)
			}(comp)
		}
		wg.Wait()
	}

	st.mu.Lock()
	report.Results = append(report.Results, st.results...)
	report.Meta.SitesProcessed = st.sitesProcessed
	report.Meta.SitesFailed = st.sitesFailed
	report.Meta.SitesSkipped = st.sitesSkipped
	report.Meta.PagesRendered = st.pagesRendered
	st.mu.Unlock()

	elapsed := time.Since(started)
	report.Meta.ElapsedMs = elapsed.Milliseconds()
	e.cfg.Metrics.runDuration.Observe(elapsed.Seconds())
	e.cfg.Metrics.runsCompleted.WithLabelValues("ok").Inc()
	logger.Info("trawl run finished",
		zap.Int("sites_processed", report.Meta.SitesProcessed),
		zap.Int("pages_rendered", report.Meta.PagesRendered),
		zap.Int("results", len(report.Results)),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}

// SelfTest runs the matcher against the fixed built-in sentence and
// phrase set, without any network access.
func (e *Engine) SelfTest() []SelfTestResult {
	sentence := textnorm.Normalize("our shilajit resin is very pure and includes pure gold")
	phrases := []string{"gold shilajit", "shilajit gold", "pure gold", "gold resin shilajit"}
	out := make([]SelfTestResult, 0, len(phrases))
	for _, phrase := range phrases {
		m := match.Compile(textnorm.Normalize(phrase), e.cfg.Match)
		out = append(out, SelfTestResult{Keyword: phrase, Match: m.Match(sentence)})
	}
	return out
}

// SelfTestResult reports one built-in matcher check.
type SelfTestResult struct {
	Keyword string `json:"kw"`
	Match   bool   `json:"match"`
}

// Info summarizes the loaded collaborator data without crawling.
func (e *Engine) Info(ctx context.Context) InfoReport {
	logger := e.cfg.Logger
	competitors := e.loadCompetitors(ctx, logger)
	keywords := rawKeywords(ctx, e.cfg.Keywords, logger)
	info := InfoReport{
		CompetitorsCount: len(competitors),
		KeywordsCount:    len(keywords),
	}
	if len(competitors) > 3 {
		competitors = competitors[:3]
	}
	info.FirstCompetitors = competitors
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	info.SampleKeywords = keywords
	return info
}

// InfoReport carries counts and samples of the loaded collaborator data.
type InfoReport struct {
	CompetitorsCount int          `json:"competitorsCount"`
	KeywordsCount    int          `json:"keywordsCount"`
	FirstCompetitors []Competitor `json:"firstCompetitors"`
	SampleKeywords   []string     `json:"sampleKeywords"`
}

func (e *Engine) loadKeywords(ctx context.Context, params RunParams, logger *zap.Logger) []compiledKeyword {
	raw := rawKeywords(ctx, e.cfg.Keywords, logger)
	if params.LimitKeywords > 0 && params.LimitKeywords < len(raw) {
		raw = raw[:params.LimitKeywords]
	}
	compiled := make([]compiledKeyword, 0, len(raw))
	for _, kw := range raw {
		compiled = append(compiled, compiledKeyword{
			phrase:  kw,
			matcher: match.Compile(textnorm.Normalize(kw), e.cfg.Match),
		})
	}
	return compiled
}

func rawKeywords(ctx context.Context, src KeywordSource, logger *zap.Logger) []string {
	if src == nil {
		return nil
	}
	raw, err := src.Keywords(ctx)
	if err != nil {
		// Degraded input beats a dead run: an unreadable keyword store
		// behaves like an empty one.
		logger.Warn("keyword store unreadable, proceeding with empty list", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

func (e *Engine) loadCompetitors(ctx context.Context, logger *zap.Logger) []Competitor {
	if e.cfg.Competitors == nil {
		return nil
	}
	competitors, err := e.cfg.Competitors.Competitors(ctx)
	if err != nil {
		logger.Warn("competitor store unreadable, proceeding with empty list", zap.Error(err))
		return nil
	}
	return competitors
}

func (e *Engine) loadImages(ctx context.Context, logger *zap.Logger) []ImageRecord {
	if e.cfg.Images == nil {
		return nil
	}
	stored, err := e.cfg.Images.Images(ctx)
	if err != nil {
		logger.Warn("image store unreadable, proceeding with empty list", zap.Error(err))
		return nil
	}
	return stored
}

func effectiveSites(sites []Competitor, params RunParams) []Competitor {
	if params.SiteIndex >= 0 && params.SiteIndex < len(sites) {
		return sites[params.SiteIndex : params.SiteIndex+1]
	}
	if params.MaxSites > 0 && params.MaxSites < len(sites) {
		return sites[:params.MaxSites]
	}
	return sites
}

func imageTimeout(fetchTimeout time.Duration) time.Duration {
	if fetchTimeout < 8*time.Second {
		return fetchTimeout
	}
	return 8 * time.Second
}

func navTimeout(fetchTimeout time.Duration) time.Duration {
	switch {
	case fetchTimeout < 5*time.Second:
		return 5 * time.Second
	case fetchTimeout > 20*time.Second:
		return 20 * time.Second
	default:
		return fetchTimeout
	}
}

// processSite runs the full pipeline for one competitor. Every failure is
// local: it degrades this site's results and never surfaces to the run.
func (st *runState) processSite(ctx context.Context, comp Competitor, logger *zap.Logger) {
	outcome := SiteOutcome{Competitor: comp, Status: SiteSucceeded}
	var staticResults, renderResults, imageResults []MatchResult

	defer func() {
		st.mu.Lock()
		st.sitesProcessed++
		if outcome.Status == SiteFailed {
			st.sitesFailed++
		}
		if outcome.Rendered {
			st.pagesRendered++
		}
		outcome.Matches = len(staticResults) + len(renderResults) + len(imageResults)
		// Within one site: static before render before image results.
		st.results = append(st.results, staticResults...)
		st.results = append(st.results, renderResults...)
		st.results = append(st.results, imageResults...)
		st.outcomes = append(st.outcomes, outcome)
		st.mu.Unlock()
		st.engine.cfg.Metrics.siteFinished(outcome.Status)
	}()

	siteURL, err := url.Parse(comp.URL)
	if err != nil {
		outcome.Status = SiteFailed
		outcome.Reason = "invalid url: " + err.Error()
		logger.Warn("competitor url unparseable", zap.String("company", comp.Name), zap.Error(err))
		return
	}

	page, err := st.fetcher.Fetch(ctx, comp.URL)
	if err != nil {
		outcome.Status = SiteFailed
		outcome.Reason = "fetch: " + err.Error()
		logger.Warn("static fetch failed",
			zap.String("company", comp.Name),
			zap.String("url", comp.URL),
			zap.Error(err),
		)
		return
	}

	doc := ParsePage(page.Body)

	// Listing-level extraction runs against every matching shape before
	// the whole-page pass, so listing hits carry the listing's own URL.
	if doc != nil {
		for _, ex := range st.engine.cfg.Extractors {
			if !ex.Detect(siteURL) {
				continue
			}
			items := ex.Extract(doc, siteURL)
			staticResults = append(staticResults, st.matchListings(comp, items)...)
		}
	}
	st.engine.cfg.Metrics.matchFound("listing", len(staticResults))

	pageText := string(page.Body)
	if doc != nil {
		pageText = doc.Text()
	}
	pageText = textnorm.Normalize(pageText)
	wholePage := st.matchWholePage(comp, pageText)
	staticResults = append(staticResults, wholePage...)
	st.engine.cfg.Metrics.matchFound("page", len(wholePage))
	matched := len(wholePage) > 0

	if !matched && st.allowRender(siteURL) && time.Since(st.started) <= st.params.Deadline {
		renderResults, outcome.Rendered = st.renderAndMatch(ctx, comp, siteURL, logger)
		st.engine.cfg.Metrics.matchFound("render", len(renderResults))
		if outcome.Rendered {
			st.engine.cfg.Metrics.pagesRendered.Inc()
		}
	}

	if st.params.IncludeImages {
		imageResults = st.images.Match(ctx, page.Body, comp.URL, st.stored, st.params.MaxImagesPerSite, comp.Name)
		st.engine.cfg.Metrics.matchFound("image", len(imageResults))
	}
}

// markSkipped records an explicit outcome for sites the run never
// reached, so a deadline overrun stays visible in the metadata.
func (st *runState) markSkipped(sites []Competitor, reason string) {
	st.mu.Lock()
	for _, comp := range sites {
		st.outcomes = append(st.outcomes, SiteOutcome{
			Competitor: comp,
			Status:     SiteSkipped,
			Reason:     reason,
		})
		st.sitesSkipped++
	}
	st.mu.Unlock()
	for range sites {
		st.engine.cfg.Metrics.siteFinished(SiteSkipped)
	}
}

// allowRender applies the render policy: rendering is on unless the run
// skips it, except for marketplace shapes that never populate without
// script execution.
func (st *runState) allowRender(siteURL *url.URL) bool {
	if !st.params.SkipRender {
		return true
	}
	for _, ex := range st.engine.cfg.Extractors {
		if ex.RequiresRender() && ex.Detect(siteURL) {
			return true
		}
	}
	return false
}

func (st *runState) getRenderer(logger *zap.Logger) Renderer {
	st.rendererOnce.Do(func() {
		st.renderer, st.rendererErr = st.engine.cfg.NewRenderer(RenderConfig{
			UserAgent:  st.engine.cfg.UserAgent,
			NavTimeout: navTimeout(st.params.FetchTimeout),
		}, logger)
		if st.rendererErr != nil {
			logger.Warn("renderer unavailable", zap.Error(st.rendererErr))
		}
	})
	return st.renderer
}

func (st *runState) closeRenderer(logger *zap.Logger) {
	if st.renderer == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.renderer.Close(closeCtx); err != nil {
		logger.Warn("renderer close failed", zap.Error(err))
	}
}

func (st *runState) renderAndMatch(
	ctx context.Context,
	comp Competitor,
	siteURL *url.URL,
	logger *zap.Logger,
) ([]MatchResult, bool) {
	renderer := st.getRenderer(logger)
	if renderer == nil {
		return nil, false
	}
	rendered, err := renderer.Render(ctx, comp.URL, st.params.RenderDelay)
	if err != nil {
		// A render failure degrades this site to its static results.
		logger.Warn("render fallback failed",
			zap.String("company", comp.Name),
			zap.String("url", comp.URL),
			zap.Error(err),
		)
		return nil, false
	}

	results := st.matchWholePage(comp, textnorm.Normalize(rendered.Text))

	if rdoc := ParsePage(rendered.HTML); rdoc != nil {
		for _, ex := range st.engine.cfg.Extractors {
			if !ex.Detect(siteURL) {
				continue
			}
			items := ex.Extract(rdoc, siteURL)
			results = append(results, st.matchListings(comp, items)...)
		}
	}
	return results, true
}

func (st *runState) matchWholePage(comp Competitor, normText string) []MatchResult {
	var results []MatchResult
	for _, kw := range st.keywords {
		span, ok := kw.matcher.Find(normText)
		if !ok {
			continue
		}
		results = append(results, MatchResult{
			Company: comp.Name,
			Keyword: kw.phrase,
			URL:     comp.URL,
			Context: snippet(normText, span, 60),
		})
	}
	return results
}

func (st *runState) matchListings(comp Competitor, items []ListingItem) []MatchResult {
	var results []MatchResult
	for _, kw := range st.keywords {
		for _, item := range items {
			target := item.Title
			if target == "" {
				target = item.CardText
			}
			normTarget := textnorm.Normalize(target)
			span, ok := kw.matcher.Find(normTarget)
			if !ok {
				continue
			}
			contextText := item.Title
			if contextText == "" {
				contextText = snippet(normTarget, span, 40)
			}
			results = append(results, MatchResult{
				Company: comp.Name,
				Keyword: kw.phrase,
				URL:     item.Href,
				Context: contextText,
			})
		}
	}
	return results
}

// snippet returns a bounded window of normalized text around a match.
func snippet(norm string, span match.Span, pad int) string {
	start := span.Start - pad
	if start < 0 {
		start = 0
	}
	end := span.Start + span.Length + pad
	if end > len(norm) {
		end = len(norm)
	}
	return strings.TrimSpace(norm[start:end])
}
