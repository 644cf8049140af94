package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/metrics"
)

type requestExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// RequestExpiryJobParams configure the exchange request sweep.
type RequestExpiryJobParams struct {
	Logger   *logger.Logger
	Requests requestExpirer
	Metrics  *metrics.CronJobMetrics
}

// NewRequestExpiryJob builds the job that expires open exchange requests
// past their deadline. The sweep is janitorial: reads already treat the
// deadline as authoritative.
func NewRequestExpiryJob(params RequestExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Requests == nil {
		return nil, fmt.Errorf("exchange requests service required")
	}
	return &requestExpiryJob{
		logg:     params.Logger,
		requests: params.Requests,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

type requestExpiryJob struct {
	logg     *logger.Logger
	requests requestExpirer
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
}

func (j *requestExpiryJob) Name() string { return "request-expiry" }

func (j *requestExpiryJob) Run(ctx context.Context) error {
	count, err := j.requests.ExpireStale(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("expire stale exchange requests: %w", err)
	}
	j.metrics.AddExpired(j.Name(), int(count))
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "exchange request expiry sweep complete")
	return nil
}
