// Package memory provides an in-memory record store for development and
// testing.
package memory

import (
	"context"
	"sync"

	"github.com/simmonsip/trawler/internal/trawl"
)

// Records holds all scan inputs in process memory, preserving insertion
// order. Safe for concurrent use.
type Records struct {
	mu          sync.RWMutex
	competitors []trawl.Competitor
	keywords    []trawl.Keyword
	images      []trawl.ImageRecord
}

// New constructs an empty Records store.
func New() *Records {
	return &Records{}
}

// Competitors returns a copy of the stored competitor list.
func (s *Records) Competitors(_ context.Context) ([]trawl.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]trawl.Competitor, len(s.competitors))
	copy(out, s.competitors)
	return out, nil
}

// Keywords returns the stored phrases in order.
func (s *Records) Keywords(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keywords))
	for _, kw := range s.keywords {
		out = append(out, kw.Phrase)
	}
	return out, nil
}

// KeywordRecords returns a copy of the stored keyword records.
func (s *Records) KeywordRecords(_ context.Context) ([]trawl.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]trawl.Keyword, len(s.keywords))
	copy(out, s.keywords)
	return out, nil
}

// Images returns a copy of the stored reference-image fingerprints.
func (s *Records) Images(_ context.Context) ([]trawl.ImageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]trawl.ImageRecord, len(s.images))
	copy(out, s.images)
	return out, nil
}

// ReplaceCompetitors swaps in a new competitor list.
func (s *Records) ReplaceCompetitors(_ context.Context, competitors []trawl.Competitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitors = append([]trawl.Competitor(nil), competitors...)
	return nil
}

// AddCompetitor appends a competitor. An existing entry with the same URL
// is updated in place.
func (s *Records) AddCompetitor(_ context.Context, competitor trawl.Competitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.competitors {
		if existing.URL == competitor.URL {
			s.competitors[i] = competitor
			return nil
		}
	}
	s.competitors = append(s.competitors, competitor)
	return nil
}

// DeleteCompetitor removes the competitor with the given URL.
func (s *Records) DeleteCompetitor(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.competitors {
		if existing.URL == url {
			s.competitors = append(s.competitors[:i], s.competitors[i+1:]...)
			return nil
		}
	}
	return trawl.ErrNotFound
}

// ReplaceKeywords swaps in a new keyword list.
func (s *Records) ReplaceKeywords(_ context.Context, keywords []trawl.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append([]trawl.Keyword(nil), keywords...)
	return nil
}

// AddKeyword appends a keyword record. An existing record with the same
// phrase is updated in place.
func (s *Records) AddKeyword(_ context.Context, keyword trawl.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.keywords {
		if existing.Phrase == keyword.Phrase {
			s.keywords[i] = keyword
			return nil
		}
	}
	s.keywords = append(s.keywords, keyword)
	return nil
}

// DeleteKeyword removes the record with the given phrase.
func (s *Records) DeleteKeyword(_ context.Context, phrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.keywords {
		if existing.Phrase == phrase {
			s.keywords = append(s.keywords[:i], s.keywords[i+1:]...)
			return nil
		}
	}
	return trawl.ErrNotFound
}

// ReplaceImages swaps in a new fingerprint list.
func (s *Records) ReplaceImages(_ context.Context, images []trawl.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append([]trawl.ImageRecord(nil), images...)
	return nil
}
