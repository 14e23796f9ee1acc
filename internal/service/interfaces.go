package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"news_crawler/internal/domain"
	"news_crawler/internal/fetcher"
)

type SourceStore interface {
	ListActive(ctx context.Context) ([]domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
	UpdateWatermark(ctx context.Context, id int64, crawledAt time.Time) error
	MarkHealthy(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, maxErrors int) (int, bool, error)
}

type PostStore interface {
	FindByOriginalURLOrSlug(ctx context.Context, originalURL, slug string) (*domain.Post, error)
	Create(ctx context.Context, post *domain.Post) error
	Delete(ctx context.Context, id int64) error
	AttachImage(ctx context.Context, postID, assetID int64) error
	ResetClicks(ctx context.Context, before time.Time, floor int64) (int64, error)
}

type CategoryStore interface {
	List(ctx context.Context) ([]domain.Category, error)
	LinkToPost(ctx context.Context, postID int64, categoryIDs []int64) error
	ClickTotals(ctx context.Context) ([]domain.CategoryClicks, error)
}

type CategoryStatStore interface {
	Upsert(ctx context.Context, stat *domain.CategoryStat) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Response, error)
}

type FeedParser interface {
	Parse(ctx context.Context, body []byte) ([]domain.FeedItem, error)
}

// ImageIngestor downloads and stores an image, returning the asset id.
// It never returns an error; false means the image could not be ingested.
type ImageIngestor interface {
	Ingest(ctx context.Context, url string) (int64, bool)
}

type Prober interface {
	Head(ctx context.Context, url string) error
}

type Publisher interface {
	Publish(ctx context.Context, post *domain.Post) error
	Close() error
}
