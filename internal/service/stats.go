package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"news_crawler/internal/domain"
)

type StatsConfig struct {
	ClickWindow time.Duration
	ClickFloor  int64
}

// StatsService resets stale click counters and snapshots per-category totals.
type StatsService struct {
	posts      PostStore
	categories CategoryStore
	stats      CategoryStatStore
	logger     *slog.Logger
	config     StatsConfig
	now        func() time.Time
}

func NewStatsService(posts PostStore, categories CategoryStore, stats CategoryStatStore, logger *slog.Logger, cfg StatsConfig) *StatsService {
	return &StatsService{
		posts:      posts,
		categories: categories,
		stats:      stats,
		logger:     logger.With("component", "stats"),
		config:     cfg,
		now:        time.Now,
	}
}

// Aggregate runs the click reset and the category snapshot independently;
// a failure in one does not prevent the other.
func (s *StatsService) Aggregate(ctx context.Context) (*domain.StatsRun, error) {
	now := s.now()
	run := &domain.StatsRun{Date: startOfDay(now)}

	resetErr := s.resetClicks(ctx, now, run)
	snapshotErr := s.snapshotCategories(ctx, run)

	s.logger.Info("stats aggregated",
		"clicks_reset", run.ClicksReset,
		"categories_updated", run.CategoriesUpdated,
		"errors", run.Errors,
		"date", run.Date.Format(time.DateOnly),
	)

	return run, errors.Join(resetErr, snapshotErr)
}

func (s *StatsService) resetClicks(ctx context.Context, now time.Time, run *domain.StatsRun) error {
	cutoff := now.Add(-s.config.ClickWindow)

	n, err := s.posts.ResetClicks(ctx, cutoff, s.config.ClickFloor)
	if err != nil {
		run.Errors++
		s.logger.Error("failed to reset clicks", "error", err)
		return fmt.Errorf("reset clicks: %w", err)
	}
	run.ClicksReset = n
	return nil
}

func (s *StatsService) snapshotCategories(ctx context.Context, run *domain.StatsRun) error {
	totals, err := s.categories.ClickTotals(ctx)
	if err != nil {
		run.Errors++
		s.logger.Error("failed to sum category clicks", "error", err)
		return fmt.Errorf("category click totals: %w", err)
	}

	for _, t := range totals {
		stat := &domain.CategoryStat{
			CategoryID: t.CategoryID,
			Date:       run.Date,
			Point:      t.Clicks,
			ClickCount: t.Clicks,
		}
		if err := s.stats.Upsert(ctx, stat); err != nil {
			run.Errors++
			s.logger.Error("failed to upsert category stat", "category", t.Name, "error", err)
			continue
		}
		run.CategoriesUpdated++
	}
	return nil
}

// startOfDay is midnight UTC of the UTC calendar day containing t.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
