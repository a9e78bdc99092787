// Package file implements the record store on local JSON files, one file
// per record kind. This is the default backend: the data directory is the
// source of truth and survives restarts.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/simmonsip/trawler/internal/trawl"
)

const (
	competitorsFile = "competitors.json"
	keywordsFile    = "keywords.json"
	imagesFile      = "images.json"
)

// Config captures the parameters for the file-backed record store.
type Config struct {
	// DataDir is the directory holding the JSON record files.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// Records reads and writes JSON record files under a data directory.
// Every read goes to disk, so out-of-band edits to the files are picked
// up on the next request.
type Records struct {
	mu      sync.Mutex
	dataDir string
}

// New creates a file-backed record store, creating the data directory if
// needed.
func New(cfg Config) (*Records, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	info, err := os.Stat(cfg.DataDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat data directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.DataDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create data directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("data directory path is not a directory")
	}
	return &Records{dataDir: cfg.DataDir}, nil
}

// Competitors loads the stored competitor list.
func (s *Records) Competitors(_ context.Context) ([]trawl.Competitor, error) {
	var out []trawl.Competitor
	if err := s.read(competitorsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Keywords loads the stored phrases.
func (s *Records) Keywords(ctx context.Context) ([]string, error) {
	records, err := s.KeywordRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, kw := range records {
		out = append(out, kw.Phrase)
	}
	return out, nil
}

// KeywordRecords loads the stored keyword records.
func (s *Records) KeywordRecords(_ context.Context) ([]trawl.Keyword, error) {
	var out []trawl.Keyword
	if err := s.read(keywordsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Images loads the stored reference-image fingerprints.
func (s *Records) Images(_ context.Context) ([]trawl.ImageRecord, error) {
	var out []trawl.ImageRecord
	if err := s.read(imagesFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceCompetitors overwrites the competitor file.
func (s *Records) ReplaceCompetitors(_ context.Context, competitors []trawl.Competitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(competitorsFile, emptyIfNil(competitors))
}

// AddCompetitor appends a competitor, updating in place when the URL is
// already present.
func (s *Records) AddCompetitor(_ context.Context, competitor trawl.Competitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var competitors []trawl.Competitor
	if err := s.read(competitorsFile, &competitors); err != nil {
		return err
	}
	replaced := false
	for i, existing := range competitors {
		if existing.URL == competitor.URL {
			competitors[i] = competitor
			replaced = true
			break
		}
	}
	if !replaced {
		competitors = append(competitors, competitor)
	}
	return s.write(competitorsFile, competitors)
}

// DeleteCompetitor removes the competitor with the given URL.
func (s *Records) DeleteCompetitor(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var competitors []trawl.Competitor
	if err := s.read(competitorsFile, &competitors); err != nil {
		return err
	}
	kept := competitors[:0]
	for _, existing := range competitors {
		if existing.URL != url {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(competitors) {
		return trawl.ErrNotFound
	}
	return s.write(competitorsFile, kept)
}

// ReplaceKeywords overwrites the keyword file.
func (s *Records) ReplaceKeywords(_ context.Context, keywords []trawl.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(keywordsFile, emptyIfNil(keywords))
}

// AddKeyword appends a keyword record, updating in place when the phrase
// is already present.
func (s *Records) AddKeyword(_ context.Context, keyword trawl.Keyword) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keywords []trawl.Keyword
	if err := s.read(keywordsFile, &keywords); err != nil {
		return err
	}
	replaced := false
	for i, existing := range keywords {
		if existing.Phrase == keyword.Phrase {
			keywords[i] = keyword
			replaced = true
			break
		}
	}
	if !replaced {
		keywords = append(keywords, keyword)
	}
	return s.write(keywordsFile, keywords)
}

// DeleteKeyword removes the record with the given phrase.
func (s *Records) DeleteKeyword(_ context.Context, phrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keywords []trawl.Keyword
	if err := s.read(keywordsFile, &keywords); err != nil {
		return err
	}
	kept := keywords[:0]
	for _, existing := range keywords {
		if existing.Phrase != phrase {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(keywords) {
		return trawl.ErrNotFound
	}
	return s.write(keywordsFile, kept)
}

// ReplaceImages overwrites the fingerprint file.
func (s *Records) ReplaceImages(_ context.Context, images []trawl.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(imagesFile, emptyIfNil(images))
}

// read unmarshals one record file into out. A missing file behaves like
// an empty list.
func (s *Records) read(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// write marshals v and renames a temp file over the target so readers
// never observe a partial file.
func (s *Records) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	target := filepath.Join(s.dataDir, name)
	tmp, err := os.CreateTemp(s.dataDir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func emptyIfNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
