package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRequestExpirer struct {
	count int64
	err   error
	calls int
}

func (f *fakeRequestExpirer) ExpireStale(_ context.Context, _ time.Time) (int64, error) {
	f.calls++
	return f.count, f.err
}

type fakeExchangeExpirer struct {
	batches []int
	err     error
	calls   int
}

func (f *fakeExchangeExpirer) ExpireStale(_ context.Context, _ time.Time, _ int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if f.calls > len(f.batches) {
		return 0, nil
	}
	return f.batches[f.calls-1], nil
}

func TestRequestExpiryJobRunsSweep(t *testing.T) {
	expirer := &fakeRequestExpirer{count: 3}
	job, err := NewRequestExpiryJob(RequestExpiryJobParams{
		Logger:   testLogger(),
		Requests: expirer,
	})
	if err != nil {
		t.Fatalf("NewRequestExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one sweep, got %d", expirer.calls)
	}
}

func TestRequestExpiryJobPropagatesError(t *testing.T) {
	expirer := &fakeRequestExpirer{err: errors.New("db down")}
	job, err := NewRequestExpiryJob(RequestExpiryJobParams{
		Logger:   testLogger(),
		Requests: expirer,
	})
	if err != nil {
		t.Fatalf("NewRequestExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestExchangeExpiryJobDrainsBatches(t *testing.T) {
	expirer := &fakeExchangeExpirer{batches: []int{exchangeExpiryBatch, 12}}
	job, err := NewExchangeExpiryJob(ExchangeExpiryJobParams{
		Logger:    testLogger(),
		Exchanges: expirer,
	})
	if err != nil {
		t.Fatalf("NewExchangeExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 2 {
		t.Fatalf("expected a full batch then a partial one, got %d calls", expirer.calls)
	}
}
