package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/metrics"
)

const exchangeExpiryBatch = 200

type exchangeExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

// ExchangeExpiryJobParams configure the stale exchange sweep.
type ExchangeExpiryJobParams struct {
	Logger    *logger.Logger
	Exchanges exchangeExpirer
	Metrics   *metrics.CronJobMetrics
}

// NewExchangeExpiryJob builds the job that cancels accepted exchanges
// whose confirmation window lapsed, returning the held quantities.
func NewExchangeExpiryJob(params ExchangeExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Exchanges == nil {
		return nil, fmt.Errorf("exchanges service required")
	}
	return &exchangeExpiryJob{
		logg:      params.Logger,
		exchanges: params.Exchanges,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

type exchangeExpiryJob struct {
	logg      *logger.Logger
	exchanges exchangeExpirer
	metrics   *metrics.CronJobMetrics
	now       func() time.Time
}

func (j *exchangeExpiryJob) Name() string { return "exchange-expiry" }

func (j *exchangeExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		count, err := j.exchanges.ExpireStale(ctx, j.now().UTC(), exchangeExpiryBatch)
		if err != nil {
			return fmt.Errorf("expire stale exchanges: %w", err)
		}
		total += count
		if count < exchangeExpiryBatch {
			break
		}
	}
	j.metrics.AddExpired(j.Name(), total)
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": total})
	j.logg.Info(logCtx, "exchange expiry sweep complete")
	return nil
}
