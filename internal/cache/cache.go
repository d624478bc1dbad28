package cache

import (
	"context"
	"time"

	"posledger/backend/internal/domain"
)

// ReportCache holds computed monthly reports. Keys embed collection
// versions, so a commit makes older entries unreachable rather than stale.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.MonthlyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.MonthlyReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.MonthlyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.MonthlyReport, _ time.Duration) error {
	return nil
}
