// Package pipelinetest provides a dispatcher double for tests of code that
// publishes pipeline tasks.
package pipelinetest

import (
	"context"
	"sync"

	"hotelplan/pkg/pipeline"
)

// Recorder keeps dispatched tasks in memory instead of running them.
type Recorder struct {
	mu    sync.Mutex
	tasks []pipeline.Task
	err   error
}

var _ pipeline.Dispatcher = (*Recorder)(nil)

// FailWith makes later Dispatch calls return err without recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Dispatch(_ context.Context, task pipeline.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *Recorder) Tasks() []pipeline.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Task(nil), r.tasks...)
}

// Drain returns and forgets the recorded tasks.
func (r *Recorder) Drain() []pipeline.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := r.tasks
	r.tasks = nil
	return tasks
}
