package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"news_crawler/internal/domain"
)

type HealthConfig struct {
	Timeout time.Duration
	// MaxErrors deactivates a source after that many consecutive failed
	// probes. Zero disables deactivation.
	MaxErrors int
}

type HealthService struct {
	sources SourceStore
	prober  Prober
	logger  *slog.Logger
	config  HealthConfig
}

func NewHealthService(sources SourceStore, prober Prober, logger *slog.Logger, cfg HealthConfig) *HealthService {
	return &HealthService{
		sources: sources,
		prober:  prober,
		logger:  logger.With("component", "health"),
		config:  cfg,
	}
}

// Check probes every source, active or not, with a HEAD request.
func (s *HealthService) Check(ctx context.Context) (*domain.HealthRun, error) {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	run := &domain.HealthRun{}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		run.Checked++
		s.checkSource(ctx, src, run)
	}

	s.logger.Info("health check completed",
		"checked", run.Checked,
		"healthy", run.Healthy,
		"unhealthy", run.Unhealthy,
		"reactivated", run.Reactivated,
		"deactivated", run.Deactivated,
	)

	return run, nil
}

func (s *HealthService) checkSource(ctx context.Context, src domain.Source, run *domain.HealthRun) {
	logger := s.logger.With("source", src.Name, "url", src.URL)

	probeCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	err := s.prober.Head(probeCtx, src.URL)
	cancel()

	if err == nil {
		run.Healthy++
		if src.ErrorCount > 0 {
			if err := s.sources.MarkHealthy(ctx, src.ID); err != nil {
				logger.Error("failed to reset source errors", "error", err)
				return
			}
			if !src.IsActive {
				run.Reactivated++
				logger.Info("source reactivated")
			}
		}
		logger.Debug("source healthy")
		return
	}

	run.Unhealthy++
	logger.Warn("source unhealthy", "error", err)

	if s.config.MaxErrors <= 0 {
		return
	}
	count, active, err := s.sources.RecordFailure(ctx, src.ID, s.config.MaxErrors)
	if err != nil {
		logger.Error("failed to record source failure", "error", err)
		return
	}
	if src.IsActive && !active {
		run.Deactivated++
		logger.Warn("source deactivated", "error_count", count)
	}
}
