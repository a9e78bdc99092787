// Package store defines the record store behind the trawl API. A store
// holds the competitor list, the keyword phrases, and the reference-image
// fingerprints the engine scans with. This abstraction keeps the service
// independent of a specific backend (local JSON files, memory, Postgres).
package store

import (
	"context"

	"github.com/simmonsip/trawler/internal/trawl"
)

// Records is the full read/write surface over the stored scan inputs.
// Every implementation also satisfies the engine's read-only source
// interfaces.
type Records interface {
	trawl.CompetitorSource
	trawl.KeywordSource
	trawl.ImageSource

	// KeywordRecords returns the stored phrase records with their patent
	// references, in stored order.
	KeywordRecords(ctx context.Context) ([]trawl.Keyword, error)

	ReplaceCompetitors(ctx context.Context, competitors []trawl.Competitor) error
	AddCompetitor(ctx context.Context, competitor trawl.Competitor) error
	// DeleteCompetitor removes the competitor with the given URL and
	// returns trawl.ErrNotFound when no competitor has it.
	DeleteCompetitor(ctx context.Context, url string) error

	ReplaceKeywords(ctx context.Context, keywords []trawl.Keyword) error
	AddKeyword(ctx context.Context, keyword trawl.Keyword) error
	// DeleteKeyword removes the record with the given phrase and returns
	// trawl.ErrNotFound when no record has it.
	DeleteKeyword(ctx context.Context, phrase string) error

	ReplaceImages(ctx context.Context, images []trawl.ImageRecord) error
}
