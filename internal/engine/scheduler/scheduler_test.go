package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/scheduler"
)

func id(s string) domain.InternedString {
	return domain.NewInternedString(s)
}

func TestScheduler_Run_Diamond(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// A depends on B and C, both depend on D.
		dStarted := make(chan struct{})
		dProceed := make(chan struct{})
		bStarted := make(chan struct{})
		bProceed := make(chan struct{})
		cStarted := make(chan struct{})
		cProceed := make(chan struct{})

		jobs := []scheduler.Job{
			{ID: id("A"), Deps: []domain.InternedString{id("B"), id("C")}, Run: func(context.Context) error {
				t.Error("Job A should not be executed")
				return nil
			}},
			{ID: id("B"), Deps: []domain.InternedString{id("D")}, Run: func(context.Context) error {
				close(bStarted)
				<-bProceed
				return errors.New("B failed")
			}},
			{ID: id("C"), Deps: []domain.InternedString{id("D")}, Run: func(context.Context) error {
				close(cStarted)
				<-cProceed
				return nil
			}},
			{ID: id("D"), Run: func(context.Context) error {
				close(dStarted)
				<-dProceed
				return nil
			}},
		}

		s := scheduler.NewScheduler()
		errCh := make(chan error)
		go func() {
			errCh <- s.Run(context.Background(), jobs, 2)
		}()

		synctest.Wait()
		select {
		case <-dStarted:
		default:
			t.Fatal("D did not start")
		}
		close(dProceed)

		synctest.Wait()
		<-bStarted
		<-cStarted
		close(bProceed)
		close(cProceed)

		err := <-errCh
		if err == nil {
			t.Fatal("expected error from Run, got nil")
		}

		statuses := s.GetJobStatusMap()
		want := map[string]scheduler.JobStatus{
			"A": scheduler.StatusSkipped,
			"B": scheduler.StatusFailed,
			"C": scheduler.StatusCompleted,
			"D": scheduler.StatusCompleted,
		}
		for name, status := range want {
			if got := statuses[id(name)]; got != status {
				t.Errorf("job %s: got %s, want %s", name, got, status)
			}
		}
	})
}

func TestScheduler_Run_BoundedParallelism(t *testing.T) {
	var running, peak atomic.Int32
	var mu sync.Mutex
	var order []string

	jobs := make([]scheduler.Job, 0, 16)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		jobs = append(jobs, scheduler.Job{ID: id(name), Run: func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			running.Add(-1)
			return nil
		}})
	}

	if err := scheduler.NewScheduler().Run(context.Background(), jobs, 3); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak parallelism %d exceeds limit 3", got)
	}
	if len(order) != 8 {
		t.Errorf("ran %d jobs, want 8", len(order))
	}
}

func TestScheduler_Run_Cycle(t *testing.T) {
	ran := false
	jobs := []scheduler.Job{
		{ID: id("free"), Run: func(context.Context) error { ran = true; return nil }},
		{ID: id("x"), Deps: []domain.InternedString{id("y")}, Run: func(context.Context) error { return nil }},
		{ID: id("y"), Deps: []domain.InternedString{id("x")}, Run: func(context.Context) error { return nil }},
	}

	err := scheduler.NewScheduler().Run(context.Background(), jobs, 2)
	if !errors.Is(err, domain.ErrGraphCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if !ran {
		t.Error("independent job did not run")
	}
}

func TestScheduler_Run_Cancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})

		jobs := []scheduler.Job{
			{ID: id("first"), Run: func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			}},
			{ID: id("second"), Deps: []domain.InternedString{id("first")}, Run: func(context.Context) error {
				t.Error("second should not run")
				return nil
			}},
		}

		s := scheduler.NewScheduler()
		errCh := make(chan error)
		go func() {
			errCh <- s.Run(ctx, jobs, 1)
		}()

		<-started
		cancel()
		err := <-errCh
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if errors.Is(err, domain.ErrGraphCycle) {
			t.Error("cancellation must not be reported as a cycle")
		}
	})
}
