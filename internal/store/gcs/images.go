// Package gcs provides a reference-image fingerprint source backed by a
// Google Cloud Storage object.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/simmonsip/trawler/internal/trawl"
)

// Config captures the parameters required to read the fingerprint index.
type Config struct {
	Bucket string
	// Object is the JSON index of fingerprint records within the bucket.
	Object string
}

// ImageSource reads the fingerprint index object on every call, so
// uploads by the curation tooling are visible on the next run.
type ImageSource struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed fingerprint source.
func New(client *storage.Client, cfg Config) (*ImageSource, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Object == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &ImageSource{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
	}, nil
}

// Images downloads and parses the fingerprint index. A missing object
// behaves like an empty index.
func (s *ImageSource) Images(ctx context.Context) ([]trawl.ImageRecord, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open fingerprint index gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read fingerprint index: %w", err)
	}
	var records []trawl.ImageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse fingerprint index: %w", err)
	}
	return records, nil
}
