package trawl

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// maxImageBytes bounds how much of one image is read for hashing.
const maxImageBytes = 8 << 20

// ImageMatcher fingerprints in-page images and compares them against a
// stored reference set. Individual fetch or hash failures are swallowed;
// they never abort the site's scan.
type ImageMatcher struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewImageMatcher builds a matcher whose image fetches are bounded by
// timeout and carry the run's user agent.
func NewImageMatcher(timeout time.Duration, userAgent string, logger *zap.Logger) *ImageMatcher {
	return &ImageMatcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Match scans the page markup for candidate images, fetches up to
// maxImages of them, and reports one MatchResult per stored fingerprint
// equality, keyed by the IMAGE sentinel keyword.
func (m *ImageMatcher) Match(
	ctx context.Context,
	body []byte,
	pageURL string,
	stored []ImageRecord,
	maxImages int,
	company string,
) []MatchResult {
	if len(stored) == 0 || maxImages <= 0 {
		return nil
	}
	candidates := CandidateImageURLs(body, pageURL)
	if len(candidates) > maxImages {
		candidates = candidates[:maxImages]
	}

	var results []MatchResult
	for _, imgURL := range candidates {
		digest, err := m.fetchDigest(ctx, imgURL)
		if err != nil {
			m.logger.Debug("image fingerprint skipped", zap.String("url", imgURL), zap.Error(err))
			continue
		}
		for _, rec := range stored {
			if digest == rec.Fingerprint {
				results = append(results, MatchResult{
					Company: company,
					Keyword: ImageKeyword,
					URL:     imgURL,
				})
			}
		}
	}
	return results
}

func (m *ImageMatcher) fetchDigest(ctx context.Context, imgURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image body: %w", err)
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// CandidateImageURLs extracts image source URLs from raw markup. It reads
// src and lazy-load data-src attributes, drops template-interpolation
// placeholders and URLs that are neither absolute nor root-relative,
// resolves against the page URL, and deduplicates preserving order.
func CandidateImageURLs(body []byte, pageURL string) []string {
	doc := ParsePage(body)
	if doc == nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"src", "data-src"} {
			raw, ok := img.Attr(attr)
			if !ok {
				continue
			}
			raw = strings.TrimSpace(raw)
			if raw == "" || strings.Contains(raw, "${") {
				continue
			}
			if !isAbsoluteOrRootRelative(raw) {
				continue
			}
			abs, resolved := resolveHref(base, raw)
			if !resolved {
				continue
			}
			if _, dup := seen[abs]; dup {
				continue
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
			break
		}
	})
	return out
}

func isAbsoluteOrRootRelative(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	return strings.HasPrefix(raw, "/")
}
