package seed

import (
	"context"
	"fmt"
	"log/slog"

	"news_crawler/internal/config"
	"news_crawler/internal/domain"
)

type CategoryStore interface {
	FindOrCreate(ctx context.Context, name, slug string) (*domain.Category, bool, error)
}

type SourceStore interface {
	FindOrCreate(ctx context.Context, name, url string) (*domain.Source, bool, error)
	LinkCategories(ctx context.Context, sourceID int64, categoryIDs []int64) error
}

// Result counts rows created by one Seed call.
type Result struct {
	CategoriesCreated int
	SourcesCreated    int
}

// Seeder loads the configured categories and sources. Running it again
// creates nothing new.
type Seeder struct {
	categories CategoryStore
	sources    SourceStore
	config     config.SeedConfig
	logger     *slog.Logger
}

func NewSeeder(categories CategoryStore, sources SourceStore, cfg config.SeedConfig, logger *slog.Logger) *Seeder {
	return &Seeder{
		categories: categories,
		sources:    sources,
		config:     cfg,
		logger:     logger.With("component", "seed"),
	}
}

func (s *Seeder) Seed(ctx context.Context) (*Result, error) {
	res := &Result{}
	bySlug := make(map[string]int64, len(s.config.Categories))

	for _, c := range s.config.Categories {
		category, created, err := s.categories.FindOrCreate(ctx, c.Name, c.Slug)
		if err != nil {
			return res, fmt.Errorf("seed category %q: %w", c.Slug, err)
		}
		if created {
			res.CategoriesCreated++
			s.logger.Info("category created", "slug", c.Slug)
		}
		bySlug[c.Slug] = category.ID
	}

	for _, src := range s.config.Sources {
		source, created, err := s.sources.FindOrCreate(ctx, src.Name, src.URL)
		if err != nil {
			return res, fmt.Errorf("seed source %q: %w", src.URL, err)
		}
		if created {
			res.SourcesCreated++
			s.logger.Info("source created", "name", src.Name, "url", src.URL)
		}

		var ids []int64
		for _, slug := range src.CategorySlugs {
			id, ok := bySlug[slug]
			if !ok {
				s.logger.Warn("unknown category slug", "source", src.Name, "slug", slug)
				continue
			}
			ids = append(ids, id)
		}
		if err := s.sources.LinkCategories(ctx, source.ID, ids); err != nil {
			return res, fmt.Errorf("link source %q categories: %w", src.URL, err)
		}
	}

	s.logger.Info("seed completed",
		"categories_created", res.CategoriesCreated,
		"sources_created", res.SourcesCreated,
	)
	return res, nil
}
