package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"news_crawler/internal/domain"
)

type AssetStore struct {
	db *sqlx.DB
}

func NewAssetStore(db *sqlx.DB) *AssetStore {
	return &AssetStore{db: db}
}

func (s *AssetStore) Create(ctx context.Context, a *domain.Asset) (int64, error) {
	query := `
		INSERT INTO assets (name, key, url, mime, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		a.Name, a.Key, a.URL, a.Mime, a.Size,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return 0, wrapErr("create asset", err)
	}
	return a.ID, nil
}

func (s *AssetStore) ListByPost(ctx context.Context, postID int64) ([]domain.Asset, error) {
	query := `
		SELECT a.id, a.name, a.key, a.url, a.mime, a.size, a.created_at
		FROM assets a
		INNER JOIN post_images pi ON pi.asset_id = a.id
		WHERE pi.post_id = $1
		ORDER BY a.id`

	var assets []domain.Asset
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &assets, query, postID); err != nil {
		return nil, wrapErr("list post images", err)
	}
	return assets, nil
}
