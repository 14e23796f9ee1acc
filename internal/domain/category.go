package domain

import "time"

type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// CategoryStat is a per-day engagement snapshot, unique per (category, date).
type CategoryStat struct {
	ID         int64     `db:"id" json:"id"`
	CategoryID int64     `db:"category_id" json:"category_id"`
	Date       time.Time `db:"date" json:"date"`
	Point      int64     `db:"point" json:"point"`
	ClickCount int64     `db:"click_count" json:"click_count"`
}

type CategoryClicks struct {
	CategoryID int64  `db:"category_id"`
	Name       string `db:"name"`
	Clicks     int64  `db:"clicks"`
}
