package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

type fakeLock struct {
	locked   bool
	acquires int
	releases int
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	l.acquires++
	return !l.locked, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.releases++
	return nil
}

type recordingJob struct {
	name string
	runs int
	err  error
}

func (j *recordingJob) Name() string { return j.name }

func (j *recordingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestRunCycleExecutesJobsInOrder(t *testing.T) {
	first := &recordingJob{name: "first"}
	second := &recordingJob{name: "second"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if first.runs != 1 || second.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", first.runs, second.runs)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &recordingJob{name: "sweep"}
	lock := &fakeLock{locked: true}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs while lock held, got %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("expected no release without acquisition, got %d", lock.releases)
	}
}

func TestRunCycleContinuesPastFailingJob(t *testing.T) {
	failing := &recordingJob{name: "failing", err: errors.New("boom")}
	trailing := &recordingJob{name: "trailing"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(failing, trailing),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if trailing.runs != 1 {
		t.Fatalf("expected trailing job to run, got %d", trailing.runs)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(),
		Lock:     &fakeLock{},
		Interval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
