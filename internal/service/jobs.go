package service

import "context"

// Job names used by the scheduler and the admin API.
const (
	JobCrawl  = "crawl"
	JobStats  = "stats"
	JobHealth = "health"
)

type CrawlJob struct {
	crawler *CrawlerService
}

func NewCrawlJob(crawler *CrawlerService) *CrawlJob {
	return &CrawlJob{crawler: crawler}
}

func (j *CrawlJob) Run(ctx context.Context) error {
	_, err := j.crawler.Crawl(ctx)
	return err
}

type StatsJob struct {
	stats *StatsService
}

func NewStatsJob(stats *StatsService) *StatsJob {
	return &StatsJob{stats: stats}
}

func (j *StatsJob) Run(ctx context.Context) error {
	_, err := j.stats.Aggregate(ctx)
	return err
}

type HealthJob struct {
	health *HealthService
}

func NewHealthJob(health *HealthService) *HealthJob {
	return &HealthJob{health: health}
}

func (j *HealthJob) Run(ctx context.Context) error {
	_, err := j.health.Check(ctx)
	return err
}
