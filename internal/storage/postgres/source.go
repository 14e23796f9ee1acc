package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"news_crawler/internal/domain"
)

const sourceColumns = `id, name, url, is_active, error_count, last_crawled_at, created_at, updated_at`

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) ListActive(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE is_active = TRUE ORDER BY id`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query); err != nil {
		return nil, wrapErr("list active sources", err)
	}
	return sources, nil
}

func (s *SourceStore) List(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY id`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query); err != nil {
		return nil, wrapErr("list sources", err)
	}
	return sources, nil
}

// UpdateWatermark advances last_crawled_at to crawledAt; it never moves it back.
func (s *SourceStore) UpdateWatermark(ctx context.Context, id int64, crawledAt time.Time) error {
	query := `
		UPDATE sources
		SET last_crawled_at = GREATEST(COALESCE(last_crawled_at, $2), $2),
			updated_at = NOW()
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, crawledAt)
	return wrapErr("update watermark", err)
}

func (s *SourceStore) MarkHealthy(ctx context.Context, id int64) error {
	query := `UPDATE sources SET error_count = 0, is_active = TRUE, updated_at = NOW() WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id)
	return wrapErr("mark source healthy", err)
}

// RecordFailure increments error_count and deactivates the source once it
// reaches maxErrors. It returns the updated count and active flag.
func (s *SourceStore) RecordFailure(ctx context.Context, id int64, maxErrors int) (int, bool, error) {
	query := `
		UPDATE sources
		SET error_count = error_count + 1,
			is_active = CASE WHEN error_count + 1 >= $2 THEN FALSE ELSE is_active END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING error_count, is_active`

	var row struct {
		ErrorCount int  `db:"error_count"`
		IsActive   bool `db:"is_active"`
	}
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id, maxErrors); err != nil {
		return 0, false, wrapErr("record source failure", err)
	}
	return row.ErrorCount, row.IsActive, nil
}

// FindOrCreate returns the source with url, inserting it when absent.
func (s *SourceStore) FindOrCreate(ctx context.Context, name, url string) (*domain.Source, bool, error) {
	exec := GetExecutor(ctx, s.db)

	var src domain.Source
	insert := `
		INSERT INTO sources (name, url) VALUES ($1, $2)
		ON CONFLICT (url) DO NOTHING
		RETURNING ` + sourceColumns

	err := sqlx.GetContext(ctx, exec, &src, insert, name, url)
	if err == nil {
		return &src, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, wrapErr("insert source", err)
	}

	query := `SELECT ` + sourceColumns + ` FROM sources WHERE url = $1`
	if err := sqlx.GetContext(ctx, exec, &src, query, url); err != nil {
		return nil, false, wrapErr("get source", err)
	}
	return &src, false, nil
}

// LinkCategories adds category links for the source, keeping existing ones.
func (s *SourceStore) LinkCategories(ctx context.Context, sourceID int64, categoryIDs []int64) error {
	if len(categoryIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO source_categories (source_id, category_id)
		SELECT $1, UNNEST($2::BIGINT[])
		ON CONFLICT DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, sourceID, pq.Array(categoryIDs))
	return wrapErr("link source categories", err)
}

func (s *SourceStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, `SELECT COUNT(*) FROM sources`)
	return n, wrapErr("count sources", err)
}
