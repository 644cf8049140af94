package cron

import "context"

// Job is one sweep the worker runs each tick, such as expiring stale
// exchange requests or auto-cancelling overdue exchanges.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the sweeps in their run order.
type Registry struct {
	jobs []Job
}

// NewRegistry seeds a registry, skipping nil entries.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make([]Job, 0, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job. Nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy so callers cannot reorder the schedule.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
