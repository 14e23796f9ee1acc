package domain

import "time"

type Post struct {
	ID          int64      `db:"id" json:"id"`
	SourceID    int64      `db:"source_id" json:"source_id"`
	Title       string     `db:"title" json:"title"`
	Slug        string     `db:"slug" json:"slug"`
	Content     string     `db:"content" json:"content"`
	OriginalURL string     `db:"original_url" json:"original_url"`
	PublishedAt time.Time  `db:"published_at" json:"published_at"`
	ClickCount  int64      `db:"click_count" json:"click_count"`
	HasImage    bool       `db:"has_image" json:"-"`
	Images      []Asset    `db:"-" json:"images,omitempty"`
	Categories  []Category `db:"-" json:"categories,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type Asset struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Key       string    `db:"key" json:"-"`
	URL       string    `db:"url" json:"url"`
	Mime      string    `db:"mime" json:"mime"`
	Size      int64     `db:"size" json:"size"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PostFilter narrows post listings. Zero values mean "no constraint".
type PostFilter struct {
	CategorySlug string
	Limit        int
	Offset       int
}
