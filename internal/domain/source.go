package domain

import "time"

type Source struct {
	ID            int64      `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	URL           string     `db:"url" json:"url"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	ErrorCount    int        `db:"error_count" json:"error_count"`
	LastCrawledAt *time.Time `db:"last_crawled_at" json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// NeverCrawled reports whether the source has no watermark yet.
func (s Source) NeverCrawled() bool {
	return s.LastCrawledAt == nil
}
