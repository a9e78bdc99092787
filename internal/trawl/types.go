// Package trawl implements the compliance trawl engine: bounded-concurrency
// scanning of competitor pages for patent-sensitive phrases and reference
// imagery.
package trawl

import (
	"errors"
	"net/http"
	"time"
)

// ImageKeyword is the sentinel keyword recorded for image-fingerprint hits.
const ImageKeyword = "IMAGE"

// ErrNotFound is returned by record stores when a lookup misses.
var ErrNotFound = errors.New("record not found")

// Competitor identifies one page to scan. Identity is the URL.
type Competitor struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Keyword is a stored phrase record. Patent ties the phrase back to the
// filing it protects; matching only ever sees the phrase.
type Keyword struct {
	Phrase string `json:"keyword"`
	Patent string `json:"patent,omitempty"`
}

// ImageRecord is a stored reference-image fingerprint. The engine only
// reads these; it never creates or deletes them.
type ImageRecord struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Fingerprint string `json:"fingerprint"`
}

// MatchResult is one (site, phrase-or-image) hit.
type MatchResult struct {
	Company string `json:"company"`
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
	Context string `json:"context,omitempty"`
}

// RunMetadata describes one completed run.
type RunMetadata struct {
	RunID          string `json:"run_id"`
	ElapsedMs      int64  `json:"elapsedMs"`
	SitesProcessed int    `json:"sitesProcessed"`
	SitesFailed    int    `json:"sitesFailed"`
	SitesSkipped   int    `json:"sitesSkipped"`
	PagesRendered  int    `json:"pagesRendered"`
	DeadlineMs     int64  `json:"deadlineMs"`
	FetchTimeoutMs int64  `json:"fetchTimeoutMs"`
	Concurrency    int    `json:"concurrency"`
}

// RunReport is the full result of one run.
type RunReport struct {
	Results []MatchResult `json:"results"`
	Meta    RunMetadata   `json:"meta"`
}

// RunParams are the per-run knobs. Zero values select the defaults from
// Defaults(), with one exception: a zero SiteIndex addresses the first
// competitor, so callers that want the full list must pass a negative
// SiteIndex.
type RunParams struct {
	IncludeImages bool
	SkipRender    bool
	DryRun        bool

	// SiteIndex selects a single competitor by position; negative means all.
	SiteIndex int
	// MaxSites caps how many competitors are scanned; zero means all.
	MaxSites int
	// LimitKeywords caps how many phrases are compiled; zero means all.
	LimitKeywords int

	MaxImagesPerSite int
	Concurrency      int
	// RenderDelay is the post-render settle wait. Zero selects the 1s
	// default; negative disables the wait entirely.
	RenderDelay  time.Duration
	FetchTimeout time.Duration
	Deadline     time.Duration
}

// Defaults fills unset RunParams fields with the behavior observed in
// production: 10s fetch timeout, concurrency 4, 1s settle delay, 20 images
// per site, and a deadline of 180s (90s when rendering is skipped).
func (p RunParams) Defaults() RunParams {
	if p.MaxImagesPerSite <= 0 {
		p.MaxImagesPerSite = 20
	}
	if p.Concurrency < 1 {
		p.Concurrency = 4
	}
	if p.RenderDelay < 0 {
		p.RenderDelay = 0
	} else if p.RenderDelay == 0 {
		p.RenderDelay = time.Second
	}
	if p.FetchTimeout < time.Second {
		if p.FetchTimeout <= 0 {
			p.FetchTimeout = 10 * time.Second
		} else {
			p.FetchTimeout = time.Second
		}
	}
	if p.Deadline <= 0 {
		if p.SkipRender {
			p.Deadline = 90 * time.Second
		} else {
			p.Deadline = 180 * time.Second
		}
	}
	if p.Deadline < 3*time.Second {
		p.Deadline = 3 * time.Second
	}
	return p
}

// Page is the outcome of fetching one URL.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ListingItem is one product entry extracted from a search-results page.
type ListingItem struct {
	Href     string
	Title    string
	CardText string
}

// SiteStatus classifies how one site's scan ended.
type SiteStatus string

// Site outcome values recorded in run metadata and logs.
const (
	SiteSucceeded SiteStatus = "succeeded"
	SiteSkipped   SiteStatus = "skipped"
	SiteFailed    SiteStatus = "failed"
)

// SiteOutcome makes per-site failure explicit instead of silently
// discarded: one site failing never aborts the run, but the reason stays
// observable.
type SiteOutcome struct {
	Competitor Competitor
	Status     SiteStatus
	Reason     string
	Rendered   bool
	Matches    int
}
