// Package ingest downloads feed images and hands them to the asset store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"news_crawler/internal/assets"
	"news_crawler/internal/domain"
	"news_crawler/internal/fetcher"
	"news_crawler/internal/metrics"
)

const maxNameLength = 100

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

type Downloader interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

type Uploader interface {
	Upload(ctx context.Context, f assets.File) (*domain.Asset, error)
}

type Config struct {
	Attempts   int
	RetryDelay time.Duration
	TempDir    string
}

// ImageIngestor turns a candidate image URL into a stored asset.
type ImageIngestor struct {
	downloader Downloader
	uploader   Uploader
	attempts   int
	retryDelay time.Duration
	tempDir    string
	logger     *slog.Logger
}

func NewImageIngestor(downloader Downloader, uploader Uploader, cfg Config, logger *slog.Logger) *ImageIngestor {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &ImageIngestor{
		downloader: downloader,
		uploader:   uploader,
		attempts:   attempts,
		retryDelay: cfg.RetryDelay,
		tempDir:    cfg.TempDir,
		logger:     logger.With("component", "image_ingestor"),
	}
}

// Ingest returns the stored asset id for candidateURL. It reports false when
// there is no candidate, the URL is malformed, or every attempt failed.
func (i *ImageIngestor) Ingest(ctx context.Context, candidateURL string) (int64, bool) {
	candidateURL = strings.TrimSpace(candidateURL)
	if candidateURL == "" {
		metrics.ObserveImage("missing")
		return 0, false
	}

	u, err := url.Parse(candidateURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		i.logger.Warn("invalid image url", "url", candidateURL, "error", err)
		metrics.ObserveImage("invalid")
		return 0, false
	}

	for attempt := 1; attempt <= i.attempts; attempt++ {
		id, err := i.attempt(ctx, u)
		if err == nil {
			metrics.ObserveImage("stored")
			return id, true
		}

		i.logger.Warn("image ingestion attempt failed",
			"url", candidateURL,
			"attempt", attempt,
			"error", err,
		)

		if attempt == i.attempts || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(i.retryDelay):
		}
	}

	metrics.ObserveImage("failed")
	return 0, false
}

// attempt runs one download+upload inside its own temporary directory, which
// is removed before returning.
func (i *ImageIngestor) attempt(ctx context.Context, u *url.URL) (id int64, err error) {
	dir, err := os.MkdirTemp(i.tempDir, "image-ingest-*")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			i.logger.Error("failed to remove temp dir", "dir", dir, "error", rmErr)
		}
	}()

	resp, err := i.downloader.Fetch(ctx, u.String())
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}

	contentType := mediaType(resp.ContentType)
	if !strings.HasPrefix(contentType, "image/") {
		return 0, fmt.Errorf("unexpected content type %q", resp.ContentType)
	}

	name := FileName(u, contentType)
	filePath := filepath.Join(dir, name)
	if err := os.WriteFile(filePath, resp.Body, 0o600); err != nil {
		return 0, fmt.Errorf("write temp file: %w", err)
	}

	asset, err := i.uploader.Upload(ctx, assets.File{
		Path:        filePath,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(resp.Body)),
	})
	if err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	if asset == nil {
		return 0, fmt.Errorf("upload returned no asset")
	}

	return asset.ID, nil
}

// FileName derives a safe file name from the URL path, adding an extension
// from contentType when the path has none.
func FileName(u *url.URL, contentType string) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		base = ""
	}
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")

	if base == "" {
		base = "image"
	}

	if path.Ext(base) == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			base += exts[0]
		}
	}

	if len(base) > maxNameLength {
		ext := path.Ext(base)
		if len(ext) >= maxNameLength {
			ext = ""
		}
		base = base[:maxNameLength-len(ext)] + ext
	}

	return base
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
