package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"news_crawler/internal/domain"
)

type CategoryStatStore struct {
	db *sqlx.DB
}

func NewCategoryStatStore(db *sqlx.DB) *CategoryStatStore {
	return &CategoryStatStore{db: db}
}

// Upsert writes the snapshot for (category_id, date), replacing an existing one.
func (s *CategoryStatStore) Upsert(ctx context.Context, stat *domain.CategoryStat) error {
	query := `
		INSERT INTO category_stats (category_id, date, point, click_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (category_id, date) DO UPDATE SET
			point = EXCLUDED.point,
			click_count = EXCLUDED.click_count
		RETURNING id`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		stat.CategoryID,
		stat.Date,
		stat.Point,
		stat.ClickCount,
	).Scan(&stat.ID)

	return wrapErr("upsert category stat", err)
}

func (s *CategoryStatStore) ListByCategory(ctx context.Context, categoryID int64, since time.Time) ([]domain.CategoryStat, error) {
	query := `
		SELECT id, category_id, date, point, click_count
		FROM category_stats
		WHERE category_id = $1 AND date >= $2
		ORDER BY date`

	var stats []domain.CategoryStat
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &stats, query, categoryID, since); err != nil {
		return nil, wrapErr("list category stats", err)
	}
	return stats, nil
}
