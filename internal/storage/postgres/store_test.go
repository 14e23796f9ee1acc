package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_crawler/internal/domain"
)

var (
	sourceCols   = []string{"id", "name", "url", "is_active", "error_count", "last_crawled_at", "created_at", "updated_at"}
	postCols     = []string{"id", "source_id", "title", "slug", "content", "original_url", "published_at", "click_count", "created_at", "updated_at", "has_image"}
	categoryCols = []string{"id", "name", "slug", "created_at"}
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mockDB.Close()
	})

	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestSourceStore_ListActive(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM sources WHERE is_active = TRUE").
		WillReturnRows(sqlmock.NewRows(sourceCols).
			AddRow(1, "VNExpress", "https://vnexpress.net/rss/so-hoa.rss", true, 0, nil, now, now).
			AddRow(2, "Tuoi Tre", "https://tuoitre.vn/rss/the-gioi.rss", true, 2, now, now, now))

	sources, err := NewSourceStore(db).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.True(t, sources[0].NeverCrawled())
	assert.False(t, sources[1].NeverCrawled())
	assert.Equal(t, 2, sources[1].ErrorCount)
}

func TestSourceStore_UpdateWatermark_UsesGreatest(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE sources\s+SET last_crawled_at = GREATEST\(COALESCE\(last_crawled_at, \$2\), \$2\)`).
		WithArgs(int64(7), ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewSourceStore(db).UpdateWatermark(context.Background(), 7, ts))
}

func TestSourceStore_RecordFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("UPDATE sources.+RETURNING error_count, is_active").
		WithArgs(int64(3), 5).
		WillReturnRows(sqlmock.NewRows([]string{"error_count", "is_active"}).AddRow(5, false))

	count, active, err := NewSourceStore(db).RecordFailure(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.False(t, active)
}

func TestSourceStore_FindOrCreate_Existing(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	url := "https://vnexpress.net/rss/so-hoa.rss"

	mock.ExpectQuery("INSERT INTO sources .+ON CONFLICT \\(url\\) DO NOTHING").
		WithArgs("VNExpress", url).
		WillReturnRows(sqlmock.NewRows(sourceCols))
	mock.ExpectQuery("SELECT .+ FROM sources WHERE url = \\$1").
		WithArgs(url).
		WillReturnRows(sqlmock.NewRows(sourceCols).AddRow(4, "VNExpress", url, true, 0, nil, now, now))

	src, created, err := NewSourceStore(db).FindOrCreate(context.Background(), "VNExpress", url)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(4), src.ID)
}

func TestSourceStore_LinkCategories_Empty(t *testing.T) {
	db, _ := newMockDB(t)

	require.NoError(t, NewSourceStore(db).LinkCategories(context.Background(), 1, nil))
}

func TestPostStore_FindByOriginalURLOrSlug_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM posts p\\s+WHERE p.original_url = \\$1 OR p.slug = \\$2").
		WithArgs("https://example.com/a", "a-1").
		WillReturnRows(sqlmock.NewRows(postCols))

	_, err := NewPostStore(db).FindByOriginalURLOrSlug(context.Background(), "https://example.com/a", "a-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostStore_FindByOriginalURLOrSlug_HasImage(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM posts p").
		WithArgs("https://example.com/a", "a-1").
		WillReturnRows(sqlmock.NewRows(postCols).
			AddRow(9, 1, "A", "a-1", "", "https://example.com/a", now, 3, now, now, true))

	post, err := NewPostStore(db).FindByOriginalURLOrSlug(context.Background(), "https://example.com/a", "a-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), post.ID)
	assert.True(t, post.HasImage)
}

func TestPostStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	post := &domain.Post{SourceID: 1, Title: "A", Slug: "a-1", OriginalURL: "https://example.com/a", PublishedAt: now}

	mock.ExpectQuery("INSERT INTO posts").
		WithArgs(int64(1), "A", "a-1", "", "https://example.com/a", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "click_count", "created_at", "updated_at"}).AddRow(11, 0, now, now))

	require.NoError(t, NewPostStore(db).Create(context.Background(), post))
	assert.Equal(t, int64(11), post.ID)
}

func TestPostStore_Create_Conflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("INSERT INTO posts").
		WillReturnError(&pq.Error{Code: "23505"})

	err := NewPostStore(db).Create(context.Background(), &domain.Post{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPostStore_ResetClicks(t *testing.T) {
	db, mock := newMockDB(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec("UPDATE posts SET click_count = \\$2").
		WithArgs(cutoff, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := NewPostStore(db).ResetClicks(context.Background(), cutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestPostStore_IncrementClicks(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("UPDATE posts SET click_count = click_count \\+ \\$2").
		WithArgs(int64(5), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"click_count"}).AddRow(60))

	n, err := NewPostStore(db).IncrementClicks(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(60), n)
}

func TestPostStore_List_DefaultsLimit(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM posts p").
		WithArgs("cong-nghe", defaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows(postCols))

	posts, err := NewPostStore(db).List(context.Background(), domain.PostFilter{CategorySlug: "cong-nghe"})
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestCategoryStore_LinkToPost(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("DELETE FROM post_categories WHERE post_id = \\$1").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO post_categories").
		WithArgs(int64(9), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewCategoryStore(db).LinkToPost(context.Background(), 9, []int64{3}))
}

func TestCategoryStore_FindOrCreate_New(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO categories").
		WithArgs("Công nghệ", "cong-nghe").
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow(1, "Công nghệ", "cong-nghe", now))

	c, created, err := NewCategoryStore(db).FindOrCreate(context.Background(), "Công nghệ", "cong-nghe")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "cong-nghe", c.Slug)
}

func TestCategoryStore_ClickTotals(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM categories c\\s+LEFT JOIN post_categories").
		WillReturnRows(sqlmock.NewRows([]string{"category_id", "name", "clicks"}).
			AddRow(1, "Thế giới", 120).
			AddRow(2, "Thể thao", 0))

	totals, err := NewCategoryStore(db).ClickTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, int64(120), totals[0].Clicks)
	assert.Equal(t, int64(0), totals[1].Clicks)
}

func TestCategoryStatStore_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stat := &domain.CategoryStat{CategoryID: 1, Date: day, Point: 120, ClickCount: 120}

	mock.ExpectQuery("INSERT INTO category_stats .+ON CONFLICT \\(category_id, date\\) DO UPDATE").
		WithArgs(int64(1), day, int64(120), int64(120)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))

	require.NoError(t, NewCategoryStatStore(db).Upsert(context.Background(), stat))
	assert.Equal(t, int64(77), stat.ID)
}

func TestAssetStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	a := &domain.Asset{Name: "a.png", Key: "2024/05/x-a.png", URL: "https://cdn/x", Mime: "image/png", Size: 10}

	mock.ExpectQuery("INSERT INTO assets").
		WithArgs("a.png", "2024/05/x-a.png", "https://cdn/x", "image/png", int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, now))

	id, err := NewAssetStore(db).Create(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestTransactionManager_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM posts").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		assert.NotNil(t, GetTxFromContext(ctx))
		require.NoError(t, NewPostStore(db).Delete(ctx, 1))
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestTransactionManager_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestTransactionManager_NestedJoinsOuter(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tm.WithTransaction(context.Background(), func(outer context.Context) error {
		return tm.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, GetTxFromContext(outer), GetTxFromContext(inner))
			return nil
		})
	})
	assert.NoError(t, err)
}

func TestTransactionManager_RollbackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = tm.WithTransaction(context.Background(), func(context.Context) error {
			panic("boom")
		})
	})
}

func TestGetExecutor_OutsideTransaction(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Same(t, db, GetExecutor(context.Background(), db))
}
