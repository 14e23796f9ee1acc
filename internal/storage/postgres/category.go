package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"news_crawler/internal/domain"
)

const categoryColumns = `id, name, slug, created_at`

type CategoryStore struct {
	db *sqlx.DB
}

func NewCategoryStore(db *sqlx.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) List(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	query := `SELECT ` + categoryColumns + ` FROM categories ORDER BY id`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &categories, query); err != nil {
		return nil, wrapErr("list categories", err)
	}
	return categories, nil
}

func (s *CategoryStore) GetBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	var c domain.Category
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE slug = $1`

	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &c, query, slug); err != nil {
		return nil, wrapErr("get category", err)
	}
	return &c, nil
}

// FindOrCreate returns the category with slug, inserting it when absent.
// The bool reports whether a row was created.
func (s *CategoryStore) FindOrCreate(ctx context.Context, name, slug string) (*domain.Category, bool, error) {
	exec := GetExecutor(ctx, s.db)

	var c domain.Category
	insert := `
		INSERT INTO categories (name, slug) VALUES ($1, $2)
		ON CONFLICT (slug) DO NOTHING
		RETURNING ` + categoryColumns

	err := sqlx.GetContext(ctx, exec, &c, insert, name, slug)
	if err == nil {
		return &c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, wrapErr("insert category", err)
	}

	got, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, false, err
	}
	return got, false, nil
}

func (s *CategoryStore) LinkToPost(ctx context.Context, postID int64, categoryIDs []int64) error {
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, `DELETE FROM post_categories WHERE post_id = $1`, postID); err != nil {
		return wrapErr("unlink post categories", err)
	}
	if len(categoryIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO post_categories (post_id, category_id)
		SELECT $1, UNNEST($2::BIGINT[])
		ON CONFLICT DO NOTHING`

	_, err := exec.ExecContext(ctx, query, postID, pq.Array(categoryIDs))
	return wrapErr("link post categories", err)
}

func (s *CategoryStore) ListByPost(ctx context.Context, postID int64) ([]domain.Category, error) {
	query := `
		SELECT c.id, c.name, c.slug, c.created_at
		FROM categories c
		INNER JOIN post_categories pc ON pc.category_id = c.id
		WHERE pc.post_id = $1
		ORDER BY c.id`

	var categories []domain.Category
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &categories, query, postID); err != nil {
		return nil, wrapErr("list post categories", err)
	}
	return categories, nil
}

// ClickTotals sums click_count of every category's posts. Categories
// without posts are reported with zero.
func (s *CategoryStore) ClickTotals(ctx context.Context) ([]domain.CategoryClicks, error) {
	query := `
		SELECT c.id AS category_id, c.name, COALESCE(SUM(p.click_count), 0) AS clicks
		FROM categories c
		LEFT JOIN post_categories pc ON pc.category_id = c.id
		LEFT JOIN posts p ON p.id = pc.post_id
		GROUP BY c.id, c.name
		ORDER BY c.id`

	var totals []domain.CategoryClicks
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &totals, query); err != nil {
		return nil, wrapErr("category click totals", err)
	}
	return totals, nil
}

func (s *CategoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, `SELECT COUNT(*) FROM categories`)
	return n, wrapErr("count categories", err)
}
