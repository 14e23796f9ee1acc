package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"news_crawler/internal/domain"
)

const postColumns = `p.id, p.source_id, p.title, p.slug, p.content, p.original_url,
	p.published_at, p.click_count, p.created_at, p.updated_at,
	EXISTS (SELECT 1 FROM post_images pi WHERE pi.post_id = p.id) AS has_image`

const defaultPageSize = 20

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// FindByOriginalURLOrSlug returns the post matching either key, preferring an
// original_url match. It returns domain.ErrNotFound when neither exists.
func (s *PostStore) FindByOriginalURLOrSlug(ctx context.Context, originalURL, slug string) (*domain.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts p
		WHERE p.original_url = $1 OR p.slug = $2
		ORDER BY (p.original_url = $1) DESC
		LIMIT 1`

	var post domain.Post
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &post, query, originalURL, slug); err != nil {
		return nil, wrapErr("find post", err)
	}
	return &post, nil
}

// Create inserts post and fills its generated fields. A duplicate slug or
// original_url yields domain.ErrConflict.
func (s *PostStore) Create(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (source_id, title, slug, content, original_url, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, click_count, created_at, updated_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		post.SourceID,
		post.Title,
		post.Slug,
		post.Content,
		post.OriginalURL,
		post.PublishedAt,
	).Scan(&post.ID, &post.ClickCount, &post.CreatedAt, &post.UpdatedAt)

	return wrapErr("create post", err)
}

func (s *PostStore) Delete(ctx context.Context, id int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	return wrapErr("delete post", err)
}

func (s *PostStore) AttachImage(ctx context.Context, postID, assetID int64) error {
	query := `INSERT INTO post_images (post_id, asset_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, postID, assetID)
	return wrapErr("attach image", err)
}

// ResetClicks sets click_count to floor for posts published before cutoff.
func (s *PostStore) ResetClicks(ctx context.Context, before time.Time, floor int64) (int64, error) {
	query := `
		UPDATE posts SET click_count = $2, updated_at = NOW()
		WHERE published_at < $1 AND click_count <> $2`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, before, floor)
	if err != nil {
		return 0, wrapErr("reset clicks", err)
	}
	n, err := res.RowsAffected()
	return n, wrapErr("reset clicks", err)
}

func (s *PostStore) List(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	query := `
		SELECT ` + postColumns + `
		FROM posts p
		WHERE $1::TEXT = '' OR EXISTS (
			SELECT 1 FROM post_categories pc
			JOIN categories c ON c.id = pc.category_id
			WHERE pc.post_id = p.id AND c.slug = $1
		)
		ORDER BY p.published_at DESC, p.id DESC
		LIMIT $2 OFFSET $3`

	var posts []domain.Post
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &posts, query, filter.CategorySlug, limit, filter.Offset)
	if err != nil {
		return nil, wrapErr("list posts", err)
	}
	return posts, nil
}

func (s *PostStore) GetBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p WHERE p.slug = $1`

	var post domain.Post
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &post, query, slug); err != nil {
		return nil, wrapErr("get post by slug", err)
	}
	return &post, nil
}

// IncrementClicks adds delta to the post's click_count and returns the new value.
func (s *PostStore) IncrementClicks(ctx context.Context, id, delta int64) (int64, error) {
	query := `
		UPDATE posts SET click_count = click_count + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING click_count`

	var count int64
	if err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, id, delta).Scan(&count); err != nil {
		return 0, wrapErr("increment clicks", err)
	}
	return count, nil
}

func (s *PostStore) InsertViewLogs(ctx context.Context, postIDs []int64) error {
	if len(postIDs) == 0 {
		return nil
	}
	query := `INSERT INTO view_logs (post_id) SELECT UNNEST($1::BIGINT[])`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, pq.Array(postIDs))
	return wrapErr("insert view logs", err)
}

func (s *PostStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, `SELECT COUNT(*) FROM posts`)
	return n, wrapErr("count posts", err)
}

// Top returns the most clicked posts.
func (s *PostStore) Top(ctx context.Context, limit int) ([]domain.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts p
		ORDER BY p.click_count DESC, p.published_at DESC
		LIMIT $1`

	var posts []domain.Post
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &posts, query, limit); err != nil {
		return nil, wrapErr("top posts", err)
	}
	return posts, nil
}
