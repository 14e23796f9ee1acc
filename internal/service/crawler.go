package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"news_crawler/internal/domain"
	"news_crawler/internal/feed"
	"news_crawler/internal/metrics"
	"news_crawler/internal/slug"
)

// ErrCrawlInProgress is returned by CrawlSource when the same source is
// already being crawled.
var ErrCrawlInProgress = errors.New("crawl already in progress")

type itemOutcome string

const (
	outcomeCreated       itemOutcome = "created"
	outcomeImageAttached itemOutcome = "image_attached"
	outcomeUnchanged     itemOutcome = "unchanged"
	outcomeRolledBack    itemOutcome = "rolled_back"
	outcomeFailed        itemOutcome = "failed"
)

type CrawlerConfig struct {
	FirstCrawlCap int
	RequireImage  bool
}

type CrawlerService struct {
	sources    SourceStore
	posts      PostStore
	categories CategoryStore
	txManager  TransactionManager
	fetcher    Fetcher
	parser     FeedParser
	images     ImageIngestor
	publisher  Publisher
	logger     *slog.Logger
	config     CrawlerConfig

	// pick returns an index in [0, n).
	pick func(n int) int
	now  func() time.Time

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func NewCrawlerService(
	sources SourceStore,
	posts PostStore,
	categories CategoryStore,
	txManager TransactionManager,
	fetcher Fetcher,
	parser FeedParser,
	images ImageIngestor,
	publisher Publisher,
	logger *slog.Logger,
	cfg CrawlerConfig,
) *CrawlerService {
	return &CrawlerService{
		sources:    sources,
		posts:      posts,
		categories: categories,
		txManager:  txManager,
		fetcher:    fetcher,
		parser:     parser,
		images:     images,
		publisher:  publisher,
		logger:     logger.With("component", "crawler"),
		config:     cfg,
		pick:       rand.IntN,
		now:        time.Now,
		inFlight:   make(map[int64]struct{}),
	}
}

// Crawl processes every active source in turn. A failing source never
// stops the others.
func (s *CrawlerService) Crawl(ctx context.Context) (*domain.CrawlStats, error) {
	startTime := time.Now()

	sources, err := s.sources.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	s.logger.Info("starting crawl", "sources", len(sources))

	stats := &domain.CrawlStats{Sources: len(sources)}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, err
		}

		srcStats, err := s.CrawlSource(ctx, src)
		switch {
		case errors.Is(err, ErrCrawlInProgress):
			stats.Skipped++
			metrics.ObserveSource("in_progress")
		case err != nil:
			stats.FetchFailed++
			metrics.ObserveSource("failed")
		default:
			metrics.ObserveSource("ok")
		}
		if srcStats != nil {
			stats.Items = append(stats.Items, *srcStats)
		}
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("crawl completed",
		"sources", stats.Sources,
		"fetch_failed", stats.FetchFailed,
		"skipped", stats.Skipped,
		"duration", stats.Duration,
	)

	return stats, nil
}

// CrawlSource fetches one feed and ingests the items newer than the
// source's watermark. Fetch and parse failures are returned without touching
// the watermark; per-item failures are only counted.
func (s *CrawlerService) CrawlSource(ctx context.Context, src domain.Source) (*domain.SourceStats, error) {
	logger := s.logger.With("source", src.Name, "url", src.URL)

	if !s.acquire(src.ID) {
		logger.Warn("crawl of source already in progress, skipping")
		return nil, ErrCrawlInProgress
	}
	defer s.release(src.ID)

	resp, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		logger.Error("failed to fetch feed", "error", err)
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	items, err := s.parser.Parse(ctx, resp.Body)
	if err != nil {
		logger.Error("failed to parse feed", "error", err)
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	candidates := s.selectCandidates(src, items)
	stats := &domain.SourceStats{
		SourceID:   src.ID,
		SourceName: src.Name,
		Candidates: len(candidates),
	}
	if src.LastCrawledAt != nil {
		stats.Watermark = *src.LastCrawledAt
	}

	logger.Info("selected candidates", "fetched", len(items), "candidates", len(candidates))

	if len(candidates) == 0 {
		return stats, nil
	}

	categories, err := s.categories.List(ctx)
	if err != nil {
		// Posts are still ingested, just without a category.
		logger.Warn("failed to list categories", "error", err)
	}

	maxPub := time.Unix(0, 0).UTC()
	if src.LastCrawledAt != nil {
		maxPub = *src.LastCrawledAt
	}

	for _, item := range candidates {
		pub := s.now()
		if item.PublishedAt != nil {
			pub = *item.PublishedAt
		}

		outcome := s.processItem(ctx, logger, src, item, pub, categories)
		metrics.ObserveItem(src.Name, string(outcome))

		switch outcome {
		case outcomeCreated:
			stats.Created++
		case outcomeImageAttached:
			stats.ImageAttached++
		case outcomeUnchanged:
			stats.Unchanged++
		case outcomeRolledBack:
			stats.RolledBack++
		case outcomeFailed:
			stats.Errors++
		}

		if pub.After(maxPub) {
			maxPub = pub
		}
	}

	if err := s.sources.UpdateWatermark(ctx, src.ID, maxPub); err != nil {
		logger.Error("failed to update watermark", "error", err)
		return stats, fmt.Errorf("update watermark: %w", err)
	}
	stats.Watermark = maxPub

	logger.Info("source crawled",
		"created", stats.Created,
		"image_attached", stats.ImageAttached,
		"unchanged", stats.Unchanged,
		"rolled_back", stats.RolledBack,
		"errors", stats.Errors,
		"watermark", maxPub,
	)

	return stats, nil
}

// selectCandidates keeps the first FirstCrawlCap items of a never crawled
// source, otherwise the dated items published strictly after the watermark.
func (s *CrawlerService) selectCandidates(src domain.Source, items []domain.FeedItem) []domain.FeedItem {
	if src.NeverCrawled() {
		if s.config.FirstCrawlCap > 0 && len(items) > s.config.FirstCrawlCap {
			return items[:s.config.FirstCrawlCap]
		}
		return items
	}

	watermark := *src.LastCrawledAt
	var candidates []domain.FeedItem
	for _, item := range items {
		if item.PublishedAt != nil && item.PublishedAt.After(watermark) {
			candidates = append(candidates, item)
		}
	}
	return candidates
}

func (s *CrawlerService) processItem(
	ctx context.Context,
	logger *slog.Logger,
	src domain.Source,
	item domain.FeedItem,
	pub time.Time,
	categories []domain.Category,
) itemOutcome {
	logger = logger.With("title", item.Title, "link", item.Link)

	if item.Link == "" {
		logger.Warn("item has no link")
		return outcomeFailed
	}

	postSlug := slug.WithSuffix(item.Title, pub)

	existing, err := s.posts.FindByOriginalURLOrSlug(ctx, item.Link, postSlug)
	switch {
	case err == nil:
		return s.backfillImage(ctx, logger, existing, item)
	case !errors.Is(err, domain.ErrNotFound):
		logger.Error("failed to look up post", "error", err)
		return outcomeFailed
	}

	post := &domain.Post{
		SourceID:    src.ID,
		Title:       item.Title,
		Slug:        postSlug,
		Content:     item.Content(),
		OriginalURL: item.Link,
		PublishedAt: pub,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.posts.Create(txCtx, post); err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		if category, ok := s.pickCategory(categories); ok {
			if err := s.categories.LinkToPost(txCtx, post.ID, []int64{category.ID}); err != nil {
				return fmt.Errorf("link category: %w", err)
			}
			post.Categories = []domain.Category{category}
		}
		return nil
	})
	if errors.Is(err, domain.ErrConflict) {
		logger.Debug("post already ingested")
		return outcomeUnchanged
	}
	if err != nil {
		logger.Error("failed to create post", "error", err)
		return outcomeFailed
	}

	assetID, ok := s.images.Ingest(ctx, feed.ImageCandidate(item))
	if ok {
		if err := s.posts.AttachImage(ctx, post.ID, assetID); err != nil {
			logger.Error("failed to attach image", "post_id", post.ID, "error", err)
			ok = false
		}
	}

	if !ok && s.config.RequireImage {
		if err := s.posts.Delete(ctx, post.ID); err != nil {
			logger.Error("failed to roll back post", "post_id", post.ID, "error", err)
			return outcomeFailed
		}
		logger.Warn("image ingest failed, post rolled back", "post_id", post.ID)
		return outcomeRolledBack
	}
	post.HasImage = ok

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, post); err != nil {
			logger.Warn("failed to publish post", "post_id", post.ID, "error", err)
		}
	}

	logger.Debug("post created", "post_id", post.ID, "slug", post.Slug, "has_image", ok)
	return outcomeCreated
}

// backfillImage retries the image of a post that was stored without one.
func (s *CrawlerService) backfillImage(ctx context.Context, logger *slog.Logger, post *domain.Post, item domain.FeedItem) itemOutcome {
	if post.HasImage {
		return outcomeUnchanged
	}

	assetID, ok := s.images.Ingest(ctx, feed.ImageCandidate(item))
	if !ok {
		return outcomeUnchanged
	}
	if err := s.posts.AttachImage(ctx, post.ID, assetID); err != nil {
		logger.Error("failed to attach image", "post_id", post.ID, "error", err)
		return outcomeFailed
	}
	return outcomeImageAttached
}

func (s *CrawlerService) pickCategory(categories []domain.Category) (domain.Category, bool) {
	if len(categories) == 0 {
		return domain.Category{}, false
	}
	return categories[s.pick(len(categories))], true
}

func (s *CrawlerService) acquire(sourceID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sourceID]; busy {
		return false
	}
	s.inFlight[sourceID] = struct{}{}
	return true
}

func (s *CrawlerService) release(sourceID int64) {
	s.mu.Lock()
	delete(s.inFlight, sourceID)
	s.mu.Unlock()
}
