package domain

import "time"

// CrawlStats holds statistics about one crawl run over all sources.
type CrawlStats struct {
	Sources     int
	FetchFailed int
	Skipped     int
	Items       []SourceStats
	Duration    time.Duration
}

// SourceStats holds statistics about one source within a crawl run.
type SourceStats struct {
	SourceID      int64
	SourceName    string
	Candidates    int
	Created       int
	ImageAttached int
	Unchanged     int
	RolledBack    int
	Errors        int
	Watermark     time.Time
}

type StatsRun struct {
	ClicksReset       int64
	CategoriesUpdated int
	Errors            int
	Date              time.Time
}

type HealthRun struct {
	Checked     int
	Healthy     int
	Unhealthy   int
	Reactivated int
	Deactivated int
}

type Overview struct {
	Posts      int64  `json:"posts"`
	Categories int64  `json:"categories"`
	Sources    int64  `json:"sources"`
	TopPosts   []Post `json:"top_posts_by_clicks"`
}
