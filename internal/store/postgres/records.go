// Package postgres provides a Postgres-backed record store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simmonsip/trawler/internal/trawl"
)

// Config controls the Postgres connection pool behind the record store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Records reads and writes scan inputs in Postgres.
type Records struct {
	pool querier
}

// New creates a Postgres-backed record store using the provided config.
func New(ctx context.Context, cfg Config) (*Records, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Records{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier) (*Records, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Records{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Records) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Competitors returns all competitors in insertion order.
func (s *Records) Competitors(ctx context.Context) ([]trawl.Competitor, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, url FROM competitors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query competitors: %w", err)
	}
	defer rows.Close()
	var out []trawl.Competitor
	for rows.Next() {
		var c trawl.Competitor
		if err := rows.Scan(&c.Name, &c.URL); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competitors: %w", err)
	}
	return out, nil
}

// Keywords returns the stored phrases in insertion order.
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

// KeywordRecords returns the stored keyword records in insertion order.
func (s *Records) KeywordRecords(ctx context.Context) ([]trawl.Keyword, error) {
	rows, err := s.pool.Query(ctx, `SELECT keyword, patent FROM keywords ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()
	var out []trawl.Keyword
	for rows.Next() {
		var kw trawl.Keyword
		if err := rows.Scan(&kw.Phrase, &kw.Patent); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return out, nil
}

// Images returns the stored reference-image fingerprints.
func (s *Records) Images(ctx context.Context) ([]trawl.ImageRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT url, filename, fingerprint FROM image_fingerprints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query image fingerprints: %w", err)
	}
	defer rows.Close()
	var out []trawl.ImageRecord
	for rows.Next() {
		var img trawl.ImageRecord
		if err := rows.Scan(&img.URL, &img.Filename, &img.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan image fingerprint: %w", err)
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image fingerprints: %w", err)
	}
	return out, nil
}

// ReplaceCompetitors swaps the competitors table contents in one
// transaction.
func (s *Records) ReplaceCompetitors(ctx context.Context, competitors []trawl.Competitor) error {
	return s.replace(ctx, `DELETE FROM competitors`, func(tx pgx.Tx) error {
		for _, c := range competitors {
			if _, err := tx.Exec(ctx, `INSERT INTO competitors (name, url) VALUES ($1, $2)`, c.Name, c.URL); err != nil {
				return fmt.Errorf("insert competitor: %w", err)
			}
		}
		return nil
	})
}

// AddCompetitor upserts one competitor keyed by URL.
func (s *Records) AddCompetitor(ctx context.Context, competitor trawl.Competitor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO competitors (name, url) VALUES ($1, $2)
		 ON CONFLICT (url) DO UPDATE SET name = EXCLUDED.name`,
		competitor.Name, competitor.URL)
	if err != nil {
		return fmt.Errorf("insert competitor: %w", err)
	}
	return nil
}

// DeleteCompetitor removes the competitor with the given URL.
func (s *Records) DeleteCompetitor(ctx context.Context, url string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM competitors WHERE url = $1`, url)
	if err != nil {
		return fmt.Errorf("delete competitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return trawl.ErrNotFound
	}
	return nil
}

// ReplaceKeywords swaps the keywords table contents in one transaction.
func (s *Records) ReplaceKeywords(ctx context.Context, keywords []trawl.Keyword) error {
	return s.replace(ctx, `DELETE FROM keywords`, func(tx pgx.Tx) error {
		for _, kw := range keywords {
			if _, err := tx.Exec(ctx, `INSERT INTO keywords (keyword, patent) VALUES ($1, $2)`, kw.Phrase, kw.Patent); err != nil {
				return fmt.Errorf("insert keyword: %w", err)
			}
		}
		return nil
	})
}

// AddKeyword upserts one keyword record keyed by phrase.
func (s *Records) AddKeyword(ctx context.Context, keyword trawl.Keyword) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO keywords (keyword, patent) VALUES ($1, $2)
		 ON CONFLICT (keyword) DO UPDATE SET patent = EXCLUDED.patent`,
		keyword.Phrase, keyword.Patent)
	if err != nil {
		return fmt.Errorf("insert keyword: %w", err)
	}
	return nil
}

// DeleteKeyword removes the record with the given phrase.
func (s *Records) DeleteKeyword(ctx context.Context, phrase string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM keywords WHERE keyword = $1`, phrase)
	if err != nil {
		return fmt.Errorf("delete keyword: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return trawl.ErrNotFound
	}
	return nil
}

// ReplaceImages swaps the fingerprint table contents in one transaction.
func (s *Records) ReplaceImages(ctx context.Context, images []trawl.ImageRecord) error {
	return s.replace(ctx, `DELETE FROM image_fingerprints`, func(tx pgx.Tx) error {
		for _, img := range images {
			if _, err := tx.Exec(ctx,
				`INSERT INTO image_fingerprints (url, filename, fingerprint) VALUES ($1, $2, $3)`,
				img.URL, img.Filename, img.Fingerprint); err != nil {
				return fmt.Errorf("insert image fingerprint: %w", err)
			}
		}
		return nil
	})
}

func (s *Records) replace(ctx context.Context, clear string, insert func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, clear); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
