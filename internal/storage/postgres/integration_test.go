//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"news_crawler/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_sources_and_categories.up.sql"),
			filepath.Join(migrationsPath, "002_create_posts.up.sql"),
			filepath.Join(migrationsPath, "003_create_assets.up.sql"),
			filepath.Join(migrationsPath, "004_create_stats.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "TRUNCATE view_logs, category_stats, post_images, assets, post_categories, posts, source_categories, categories, sources RESTART IDENTITY CASCADE")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createSource() *domain.Source {
	src, created, err := NewSourceStore(s.db).FindOrCreate(s.ctx, "VNExpress", "https://vnexpress.net/rss/so-hoa.rss")
	s.Require().NoError(err)
	s.Require().True(created)
	return src
}

func (s *PostgresIntegrationSuite) createPost(sourceID int64, slug, url string, published time.Time) *domain.Post {
	post := &domain.Post{
		SourceID:    sourceID,
		Title:       "Title " + slug,
		Slug:        slug,
		OriginalURL: url,
		PublishedAt: published,
	}
	s.Require().NoError(NewPostStore(s.db).Create(s.ctx, post))
	return post
}

func (s *PostgresIntegrationSuite) TestSourceStore_FindOrCreate_Idempotent() {
	store := NewSourceStore(s.db)

	first := s.createSource()
	second, created, err := store.FindOrCreate(s.ctx, "VNExpress again", first.URL)
	s.NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)

	n, err := store.Count(s.ctx)
	s.NoError(err)
	s.Equal(int64(1), n)
}

func (s *PostgresIntegrationSuite) TestSourceStore_UpdateWatermark_NeverMovesBack() {
	store := NewSourceStore(s.db)
	src := s.createSource()
	later := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-48 * time.Hour)

	s.NoError(store.UpdateWatermark(s.ctx, src.ID, later))
	s.NoError(store.UpdateWatermark(s.ctx, src.ID, earlier))

	sources, err := store.ListActive(s.ctx)
	s.NoError(err)
	s.Require().Len(sources, 1)
	s.Require().NotNil(sources[0].LastCrawledAt)
	s.True(sources[0].LastCrawledAt.Equal(later))
}

func (s *PostgresIntegrationSuite) TestSourceStore_RecordFailure_Deactivates() {
	store := NewSourceStore(s.db)
	src := s.createSource()

	count, active, err := store.RecordFailure(s.ctx, src.ID, 2)
	s.NoError(err)
	s.Equal(1, count)
	s.True(active)

	count, active, err = store.RecordFailure(s.ctx, src.ID, 2)
	s.NoError(err)
	s.Equal(2, count)
	s.False(active)

	s.NoError(store.MarkHealthy(s.ctx, src.ID))
	sources, err := store.ListActive(s.ctx)
	s.NoError(err)
	s.Require().Len(sources, 1)
	s.Equal(0, sources[0].ErrorCount)
}

func (s *PostgresIntegrationSuite) TestPostStore_Create_DuplicateIsConflict() {
	src := s.createSource()
	now := time.Now().Truncate(time.Microsecond)
	s.createPost(src.ID, "a-1", "https://example.com/a", now)

	err := NewPostStore(s.db).Create(s.ctx, &domain.Post{
		SourceID: src.ID, Title: "dup", Slug: "a-2", OriginalURL: "https://example.com/a", PublishedAt: now,
	})
	s.True(errors.Is(err, domain.ErrConflict))
}

func (s *PostgresIntegrationSuite) TestPostStore_FindByOriginalURLOrSlug() {
	store := NewPostStore(s.db)
	assets := NewAssetStore(s.db)
	src := s.createSource()
	now := time.Now().Truncate(time.Microsecond)
	post := s.createPost(src.ID, "a-1", "https://example.com/a", now)

	found, err := store.FindByOriginalURLOrSlug(s.ctx, "https://other.example.com/x", "a-1")
	s.NoError(err)
	s.Equal(post.ID, found.ID)
	s.False(found.HasImage)

	assetID, err := assets.Create(s.ctx, &domain.Asset{Name: "a.png", Key: "k/a.png", URL: "https://cdn/a.png", Mime: "image/png", Size: 3})
	s.NoError(err)
	s.NoError(store.AttachImage(s.ctx, post.ID, assetID))
	s.NoError(store.AttachImage(s.ctx, post.ID, assetID))

	found, err = store.FindByOriginalURLOrSlug(s.ctx, "https://example.com/a", "other")
	s.NoError(err)
	s.True(found.HasImage)

	images, err := assets.ListByPost(s.ctx, post.ID)
	s.NoError(err)
	s.Len(images, 1)

	_, err = store.FindByOriginalURLOrSlug(s.ctx, "https://missing", "missing")
	s.True(errors.Is(err, domain.ErrNotFound))
}

func (s *PostgresIntegrationSuite) TestPostStore_ResetClicks_OnlyOldPosts() {
	store := NewPostStore(s.db)
	src := s.createSource()
	now := time.Now().Truncate(time.Microsecond)
	old := s.createPost(src.ID, "old", "https://example.com/old", now.Add(-48*time.Hour))
	fresh := s.createPost(src.ID, "fresh", "https://example.com/fresh", now)

	_, err := store.IncrementClicks(s.ctx, old.ID, 57)
	s.NoError(err)
	_, err = store.IncrementClicks(s.ctx, fresh.ID, 9)
	s.NoError(err)

	n, err := store.ResetClicks(s.ctx, now.Add(-24*time.Hour), 1)
	s.NoError(err)
	s.Equal(int64(1), n)

	got, err := store.GetBySlug(s.ctx, "old")
	s.NoError(err)
	s.Equal(int64(1), got.ClickCount)

	got, err = store.GetBySlug(s.ctx, "fresh")
	s.NoError(err)
	s.Equal(int64(9), got.ClickCount)
}

func (s *PostgresIntegrationSuite) TestCategoryStats_UpsertPerDay() {
	categories := NewCategoryStore(s.db)
	stats := NewCategoryStatStore(s.db)
	posts := NewPostStore(s.db)
	src := s.createSource()
	now := time.Now().Truncate(time.Microsecond)

	cat, _, err := categories.FindOrCreate(s.ctx, "Thế giới", "the-gioi")
	s.NoError(err)
	empty, _, err := categories.FindOrCreate(s.ctx, "Thể thao", "the-thao")
	s.NoError(err)

	post := s.createPost(src.ID, "p", "https://example.com/p", now)
	s.NoError(categories.LinkToPost(s.ctx, post.ID, []int64{cat.ID}))
	_, err = posts.IncrementClicks(s.ctx, post.ID, 12)
	s.NoError(err)

	totals, err := categories.ClickTotals(s.ctx)
	s.NoError(err)
	s.Require().Len(totals, 2)
	s.Equal(int64(12), totals[0].Clicks)
	s.Equal(empty.ID, totals[1].CategoryID)
	s.Equal(int64(0), totals[1].Clicks)

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.NoError(stats.Upsert(s.ctx, &domain.CategoryStat{CategoryID: cat.ID, Date: day, Point: 10, ClickCount: 10}))
	s.NoError(stats.Upsert(s.ctx, &domain.CategoryStat{CategoryID: cat.ID, Date: day, Point: 12, ClickCount: 12}))

	rows, err := stats.ListByCategory(s.ctx, cat.ID, day.Add(-24*time.Hour))
	s.NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(int64(12), rows[0].Point)
}

func (s *PostgresIntegrationSuite) TestPostStore_ListByCategory() {
	categories := NewCategoryStore(s.db)
	posts := NewPostStore(s.db)
	src := s.createSource()
	now := time.Now().Truncate(time.Microsecond)

	cat, _, err := categories.FindOrCreate(s.ctx, "Công nghệ", "cong-nghe")
	s.NoError(err)
	a := s.createPost(src.ID, "a", "https://example.com/a", now.Add(-time.Hour))
	b := s.createPost(src.ID, "b", "https://example.com/b", now)
	s.createPost(src.ID, "c", "https://example.com/c", now)
	s.NoError(categories.LinkToPost(s.ctx, a.ID, []int64{cat.ID}))
	s.NoError(categories.LinkToPost(s.ctx, b.ID, []int64{cat.ID}))

	list, err := posts.List(s.ctx, domain.PostFilter{CategorySlug: "cong-nghe"})
	s.NoError(err)
	s.Require().Len(list, 2)
	s.Equal(b.ID, list[0].ID)

	all, err := posts.List(s.ctx, domain.PostFilter{})
	s.NoError(err)
	s.Len(all, 3)

	s.NoError(posts.InsertViewLogs(s.ctx, []int64{a.ID, a.ID, b.ID}))
	var views int
	s.NoError(s.db.GetContext(s.ctx, &views, "SELECT COUNT(*) FROM view_logs"))
	s.Equal(3, views)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	posts := NewPostStore(s.db)
	src := s.createSource()
	now := time.Now().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		post := &domain.Post{SourceID: src.ID, Title: "t", Slug: "t", OriginalURL: "https://example.com/t", PublishedAt: now}
		if err := posts.Create(ctx, post); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	n, err := posts.Count(s.ctx)
	s.NoError(err)
	s.Equal(int64(0), n)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	posts := NewPostStore(s.db)
	categories := NewCategoryStore(s.db)
	src := s.createSource()
	now := time.Now().Truncate(time.Microsecond)
	cat, _, err := categories.FindOrCreate(s.ctx, "Kinh doanh", "kinh-doanh")
	s.Require().NoError(err)

	var postID int64
	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		post := &domain.Post{SourceID: src.ID, Title: "t", Slug: "t", OriginalURL: "https://example.com/t", PublishedAt: now}
		if err := posts.Create(ctx, post); err != nil {
			return err
		}
		postID = post.ID
		return categories.LinkToPost(ctx, post.ID, []int64{cat.ID})
	})
	s.NoError(err)

	linked, err := categories.ListByPost(s.ctx, postID)
	s.NoError(err)
	s.Require().Len(linked, 1)
	s.Equal("kinh-doanh", linked[0].Slug)
}
