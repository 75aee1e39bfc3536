// Package scheduler runs a stage's work items across a bounded worker pool,
// honouring dependencies between them.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// JobStatus represents the status of a job.
type JobStatus string

const (
	// StatusPending indicates the job is waiting to be executed.
	StatusPending JobStatus = "Pending"
	// StatusRunning indicates the job is currently executing.
	StatusRunning JobStatus = "Running"
	// StatusCompleted indicates the job has finished successfully.
	StatusCompleted JobStatus = "Completed"
	// StatusFailed indicates the job returned an error.
	StatusFailed JobStatus = "Failed"
	// StatusSkipped indicates the job never ran because a dependency failed.
	StatusSkipped JobStatus = "Skipped"
)

// Job is one unit of work.
type Job struct {
	ID domain.InternedString
	// Deps are the jobs that must complete first. Unknown ids are ignored.
	Deps []domain.InternedString
	Run  func(ctx context.Context) error
}

// Scheduler executes a set of jobs.
type Scheduler struct {
	mu        sync.RWMutex
	jobStatus map[domain.InternedString]JobStatus
}

// NewScheduler creates a new Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		jobStatus: make(map[domain.InternedString]JobStatus),
	}
}

// Status returns the status of a job of the last run.
func (s *Scheduler) Status(id domain.InternedString) JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobStatus[id]
}

func (s *Scheduler) updateStatus(id domain.InternedString, status JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobStatus[id] = status
}

// Run executes jobs with at most parallelism running at once. A failed job
// skips everything depending on it; the remaining jobs still run. The
// returned error joins every job failure.
func (s *Scheduler) Run(ctx context.Context, jobs []Job, parallelism int) error {
	if parallelism < 1 {
		parallelism = 1
	}
	state := s.newRunState(ctx, jobs, parallelism)

	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.ctx.Err() != nil && state.active == 0 {
			return errors.Join(state.errs, state.ctx.Err())
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-state.ctx.Done():
		}
	}

	if state.ctx.Err() != nil {
		return errors.Join(state.errs, state.ctx.Err())
	}
	if stuck := state.unfinished(); len(stuck) > 0 {
		state.errs = errors.Join(state.errs, domain.CycleError(stuck))
	}
	return state.errs
}

type result struct {
	job domain.InternedString
	err error
}

type runState struct {
	inDegree    map[domain.InternedString]int
	jobs        map[domain.InternedString]Job
	dependents  map[domain.InternedString][]domain.InternedString
	ready       []domain.InternedString
	active      int
	resultsCh   chan result
	errs        error
	ctx         context.Context
	parallelism int
	s           *Scheduler
}

func (s *Scheduler) newRunState(ctx context.Context, jobs []Job, parallelism int) *runState {
	s.mu.Lock()
	s.jobStatus = make(map[domain.InternedString]JobStatus, len(jobs))
	s.mu.Unlock()

	state := &runState{
		inDegree:    make(map[domain.InternedString]int, len(jobs)),
		jobs:        make(map[domain.InternedString]Job, len(jobs)),
		dependents:  make(map[domain.InternedString][]domain.InternedString),
		resultsCh:   make(chan result, parallelism),
		ctx:         ctx,
		parallelism: parallelism,
		s:           s,
	}
	for _, job := range jobs {
		state.jobs[job.ID] = job
	}
	// Ready jobs keep submission order so runs are reproducible.
	for _, job := range jobs {
		s.updateStatus(job.ID, StatusPending)
		for _, dep := range job.Deps {
			if _, ok := state.jobs[dep]; !ok || dep == job.ID {
				continue
			}
			state.inDegree[job.ID]++
			state.dependents[dep] = append(state.dependents[dep], job.ID)
		}
		if state.inDegree[job.ID] == 0 {
			state.ready = append(state.ready, job.ID)
		}
	}
	return state
}

func (state *runState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *runState) schedule() {
	for len(state.ready) > 0 && state.active < state.parallelism && state.ctx.Err() == nil {
		id := state.ready[0]
		state.ready = state.ready[1:]

		state.active++
		state.s.updateStatus(id, StatusRunning)

		go func(j Job) {
			state.resultsCh <- result{job: j.ID, err: j.Run(state.ctx)}
		}(state.jobs[id])
	}
}

func (state *runState) handleResult(res result) {
	state.active--
	if res.err != nil {
		wrapped := zerr.With(zerr.Wrap(res.err, res.job.String()), "job", res.job.String())
		state.errs = errors.Join(state.errs, wrapped)
		state.s.updateStatus(res.job, StatusFailed)
		state.skip(res.job)
		return
	}
	state.s.updateStatus(res.job, StatusCompleted)
	for _, dep := range state.dependents[res.job] {
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.ready = append(state.ready, dep)
		}
	}
}

// skip marks every transitive dependent of id as skipped.
func (state *runState) skip(id domain.InternedString) {
	for _, dep := range state.dependents[id] {
		if state.s.Status(dep) == StatusSkipped {
			continue
		}
		state.s.updateStatus(dep, StatusSkipped)
		state.skip(dep)
	}
}

// unfinished returns the jobs that never became ready because they wait on
// each other.
func (state *runState) unfinished() []domain.InternedString {
	var stuck []domain.InternedString
	for id := range state.jobs {
		if state.s.Status(id) == StatusPending {
			stuck = append(stuck, id)
		}
	}
	return domain.SortIDs(stuck)
}
