package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

type fakeJob struct {
	name string
	runs int
	err  error
}

func (f *fakeJob) Name() string { return f.name }

func (f *fakeJob) Run(ctx context.Context) error {
	f.runs++
	return f.err
}

type fakeLock struct {
	held     bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	f.acquires++
	if f.err != nil {
		return false, f.err
	}
	return !f.held, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.releases++
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

func newTestService(t *testing.T, registry *Registry, lock Lock) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     lock,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunCycleExecutesJobsInOrder(t *testing.T) {
	first := &fakeJob{name: "first"}
	second := &fakeJob{name: "second"}
	lock := &fakeLock{}
	svc := newTestService(t, NewRegistry(first, second), lock)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if first.runs != 1 || second.runs != 1 {
		t.Fatalf("job runs = %d, %d", first.runs, second.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("lock releases = %d", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &fakeJob{name: "noop"}
	lock := &fakeLock{held: true}
	svc := newTestService(t, NewRegistry(job), lock)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("job ran without the lock")
	}
	if lock.releases != 0 {
		t.Fatal("released a lock it never acquired")
	}
}

func TestRunCycleContinuesPastJobFailure(t *testing.T) {
	failing := &fakeJob{name: "failing", err: errors.New("boom")}
	healthy := &fakeJob{name: "healthy"}
	svc := newTestService(t, NewRegistry(failing, healthy), &fakeLock{})

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if healthy.runs != 1 {
		t.Fatal("failure in one job starved the rest of the cycle")
	}
}

func TestRegistryIgnoresNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &fakeJob{name: "real"}, nil)
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("registry holds %d jobs, want 1", got)
	}
}
