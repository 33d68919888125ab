package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"hotelplan/pkg/cost"
	"hotelplan/pkg/queue"
)

// Stage names a pipeline step. Stage values double as queue job kinds.
type Stage string

const (
	StageDesignChange Stage = "design_change"
	StageRecalculate  Stage = "recalc"
	StageCost         Stage = "cost"
)

// Task asks for one stage to run for one project. BrandTier and
// RegionalMultiplier are only read by the cost stage.
type Task struct {
	Stage              Stage   `json:"stage"`
	ProjectID          string  `json:"projectId"`
	BrandTier          string  `json:"brandTier,omitempty"`
	RegionalMultiplier float64 `json:"regionalMultiplier,omitempty"`
}

// DesignChangeTask, RecalculateTask and CostTask build tasks with the stage defaults filled in.
func DesignChangeTask(projectID string) Task {
	return Task{Stage: StageDesignChange, ProjectID: projectID}
}

func RecalculateTask(projectID string) Task {
	return Task{Stage: StageRecalculate, ProjectID: projectID}
}

func CostTask(projectID, brandTier string, regionalMultiplier float64) Task {
	return Task{Stage: StageCost, ProjectID: projectID, BrandTier: brandTier, RegionalMultiplier: regionalMultiplier}
}

// Dispatcher hands a task to whatever runs the next stage. Dispatch returns
// once the task is accepted, not once it has run.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Enqueuer is the part of queue.RedisJobQueue the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind, projectID string, payload []byte) (queue.Job, error)
}

type costPayload struct {
	BrandTier          string  `json:"brandTier"`
	RegionalMultiplier float64 `json:"regionalMultiplier"`
}

// QueueDispatcher publishes tasks as queue jobs.
type QueueDispatcher struct {
	queue Enqueuer
}

func NewQueueDispatcher(q Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, task Task) error {
	var payload []byte
	if task.Stage == StageCost {
		raw, err := json.Marshal(costPayload{BrandTier: task.BrandTier, RegionalMultiplier: task.RegionalMultiplier})
		if err != nil {
			return fmt.Errorf("encode cost payload: %w", err)
		}
		payload = raw
	}
	if _, err := d.queue.Enqueue(ctx, string(task.Stage), task.ProjectID, payload); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Stage, err)
	}
	return nil
}

// TaskFromJob rebuilds a task from a queue job. Cost jobs without a payload
// get the default tier and multiplier.
func TaskFromJob(job queue.Job) (Task, error) {
	task := Task{Stage: Stage(job.Kind), ProjectID: job.ProjectID}
	switch task.Stage {
	case StageDesignChange, StageRecalculate:
		return task, nil
	case StageCost:
		p := costPayload{BrandTier: cost.DefaultBrandTier, RegionalMultiplier: cost.DefaultRegionalMultiplier}
		if len(job.Payload) > 0 {
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return Task{}, fmt.Errorf("decode cost payload: %w", err)
			}
		}
		task.BrandTier = p.BrandTier
		task.RegionalMultiplier = p.RegionalMultiplier
		return task, nil
	default:
		return Task{}, fmt.Errorf("%w: %q", ErrUnknownStage, job.Kind)
	}
}

// QueueHandler adapts a coordinator to the queue consumer.
func QueueHandler(c *Coordinator) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		task, err := TaskFromJob(job)
		if err != nil {
			return err
		}
		return c.Handle(ctx, task)
	}
}

// Inline returns a dispatcher that runs tasks on c before Dispatch returns.
func Inline(c *Coordinator) Dispatcher {
	return inlineDispatcher{handle: c.Handle}
}

// inlineDispatcher runs the next stage synchronously inside the current one.
type inlineDispatcher struct {
	handle func(context.Context, Task) error
}

func (d inlineDispatcher) Dispatch(ctx context.Context, task Task) error {
	return d.handle(ctx, task)
}

var _ Dispatcher = (*QueueDispatcher)(nil)
