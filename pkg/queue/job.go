// Package queue carries pipeline follow-up stages over a Redis stream with a
// consumer group. Each job also has a status hash that outlives the stream
// entry, so callers can poll a job after it has been acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Job is one unit of pipeline work. Kind names the stage, Payload carries its arguments.
type Job struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	ProjectID    string          `json:"projectId"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Handler processes a job. A non-nil error counts as a failed attempt.
type Handler func(context.Context, Job) error

// jobRecord is the layout of the status hash.
type jobRecord struct {
	Kind      string `redis:"kind"`
	ProjectID string `redis:"projectId"`
	Payload   string `redis:"payload"`
	Status    string `redis:"status"`
	Error     string `redis:"error"`
	Attempts  int    `redis:"attempts"`
	CreatedAt string `redis:"createdAt"`
	UpdatedAt string `redis:"updatedAt"`
}

func (r jobRecord) toJob(id string) Job {
	job := Job{
		ID:           id,
		Kind:         r.Kind,
		ProjectID:    r.ProjectID,
		Status:       r.Status,
		ErrorMessage: r.Error,
		Attempts:     r.Attempts,
		CreatedAt:    parseStamp(r.CreatedAt),
		UpdatedAt:    parseStamp(r.UpdatedAt),
	}
	if r.Payload != "" {
		job.Payload = json.RawMessage(r.Payload)
	}
	return job
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStamp(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Stream entries only reference the job; status lives in the hash.
const (
	entryJobID   = "job_id"
	entryKind    = "kind"
	entryProject = "project_id"
	entryPayload = "payload"
)

func entryValues(job Job) map[string]any {
	return map[string]any{
		entryJobID:   job.ID,
		entryKind:    job.Kind,
		entryProject: job.ProjectID,
		entryPayload: string(job.Payload),
	}
}

func jobFromEntry(msg redis.XMessage) (Job, bool) {
	var job Job
	job.ID, _ = msg.Values[entryJobID].(string)
	job.Kind, _ = msg.Values[entryKind].(string)
	job.ProjectID, _ = msg.Values[entryProject].(string)
	if raw, _ := msg.Values[entryPayload].(string); raw != "" {
		job.Payload = json.RawMessage(raw)
	}
	return job, job.ID != "" && job.Kind != "" && job.ProjectID != ""
}
