package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, cfg RedisQueueConfig) (*RedisJobQueue, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	cfg.Addr = srv.Addr()
	if cfg.Stream == "" {
		cfg.Stream = "test:queue"
	}
	q, err := NewRedisJobQueue(cfg)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q, srv
}

// readPending enqueues a cost job and reads it into the PEL of consumer-1.
func readPending(t *testing.T, q *RedisJobQueue) (redis.XMessage, Job) {
	t.Helper()
	ctx := context.Background()
	q.ensureGroup(ctx)
	job, err := q.Enqueue(ctx, "cost", "project-1", []byte(`{"brandTier":"luxury"}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: "consumer-1",
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    1,
	}).Result()
	if err != nil || len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("readgroup: %v %+v", err, streams)
	}
	return streams[0].Messages[0], job
}

func pendingCount(t *testing.T, q *RedisJobQueue) int64 {
	t.Helper()
	p, err := q.client.XPending(context.Background(), q.cfg.Stream, q.cfg.Group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return p.Count
}

func TestNewRedisJobQueueDefaults(t *testing.T) {
	if _, err := NewRedisJobQueue(RedisQueueConfig{Stream: "s"}); err == nil {
		t.Fatal("expected missing addr to fail")
	}
	if _, err := NewRedisJobQueue(RedisQueueConfig{Addr: "localhost:6379"}); err == nil {
		t.Fatal("expected missing stream to fail")
	}
	q, _ := newTestQueue(t, RedisQueueConfig{})
	if q.cfg.MaxRetries != 1 || q.cfg.Group != "default" || q.cfg.JobTTL != 24*time.Hour || q.cfg.Consumer == "" {
		t.Fatalf("unexpected defaults: %+v", q.cfg)
	}
}

func TestEnqueueWritesStatusAndEntry(t *testing.T) {
	q, srv := newTestQueue(t, RedisQueueConfig{JobTTL: time.Hour})
	ctx := context.Background()

	job, err := q.Enqueue(ctx, " recalc ", "project-1", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Kind != "recalc" || got.Status != StatusQueued || got.Attempts != 0 || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected job: %+v", got)
	}
	if ttl := srv.TTL(q.jobKey(job.ID)); ttl != time.Hour {
		t.Fatalf("job ttl = %v", ttl)
	}
	entries, _ := q.client.XRange(ctx, q.cfg.Stream, "-", "+").Result()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if ref, ok := jobFromEntry(entries[0]); !ok || ref.ID != job.ID {
		t.Fatalf("entry does not reference job: %+v", entries[0].Values)
	}

	if _, ok, err := q.GetJob(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected missing job, ok=%v err=%v", ok, err)
	}
	if _, err := q.Enqueue(ctx, "", "project-1", nil); err == nil {
		t.Fatal("expected missing kind to fail")
	}
	if _, err := q.Enqueue(ctx, "cost", " ", nil); err == nil {
		t.Fatal("expected missing project to fail")
	}
}

func TestHandleMessageSuccessAcksEntry(t *testing.T) {
	q, _ := newTestQueue(t, RedisQueueConfig{})
	ctx := context.Background()
	msg, job := readPending(t, q)

	q.handleMessage(ctx, msg, func(_ context.Context, j Job) error {
		if j.Status != StatusProcessing || j.Attempts != 1 || string(j.Payload) != `{"brandTier":"luxury"}` {
			t.Errorf("unexpected job handed to handler: %+v", j)
		}
		return nil
	})

	got, _, _ := q.GetJob(ctx, job.ID)
	if got.Status != StatusDone || got.Attempts != 1 {
		t.Fatalf("expected done, got %+v", got)
	}
	if pendingCount(t, q) != 0 {
		t.Fatal("entry still pending")
	}
	if n, _ := q.client.XLen(ctx, q.cfg.Stream).Result(); n != 0 {
		t.Fatalf("expected entry deleted, stream len %d", n)
	}
}

func TestHandleMessageSingleAttemptMarksFailed(t *testing.T) {
	q, _ := newTestQueue(t, RedisQueueConfig{})
	ctx := context.Background()
	msg, job := readPending(t, q)

	calls := 0
	q.handleMessage(ctx, msg, func(context.Context, Job) error {
		calls++
		return errors.New("store unavailable")
	})
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	got, _, _ := q.GetJob(ctx, job.ID)
	if got.Status != StatusFailed || got.Attempts != 1 || got.ErrorMessage != "store unavailable" {
		t.Fatalf("unexpected job state: %+v", got)
	}
	if n, _ := q.client.XLen(ctx, q.cfg.Stream).Result(); n != 0 {
		t.Fatalf("expected failed entry removed, got len=%d", n)
	}
}

func TestHandleMessageRetriesWhenConfigured(t *testing.T) {
	q, _ := newTestQueue(t, RedisQueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	ctx := context.Background()
	msg, job := readPending(t, q)

	q.handleMessage(ctx, msg, func(context.Context, Job) error { return errors.New("transient") })

	got, _, _ := q.GetJob(ctx, job.ID)
	if got.Status != StatusQueued || got.Attempts != 1 || got.ErrorMessage != "transient" {
		t.Fatalf("expected requeued job, got %+v", got)
	}
	if pendingCount(t, q) != 0 {
		t.Fatal("old entry still pending after requeue")
	}
	entries, _ := q.client.XRange(ctx, q.cfg.Stream, "-", "+").Result()
	if len(entries) != 1 || entries[0].ID == msg.ID {
		t.Fatalf("expected a fresh entry, got %+v", entries)
	}

	q.handleMessage(ctx, entries[0], func(_ context.Context, j Job) error {
		if j.Attempts != 2 {
			t.Errorf("expected second attempt, got %d", j.Attempts)
		}
		return nil
	})
	got, _, _ = q.GetJob(ctx, job.ID)
	if got.Status != StatusDone || got.ErrorMessage != "" {
		t.Fatalf("expected job done, got %+v", got)
	}
}

func TestRequeueFailureKeepsPendingEntry(t *testing.T) {
	q, _ := newTestQueue(t, RedisQueueConfig{})
	msg, job := readPending(t, q)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.requeue(canceled, msg.ID, job, "boom"); err == nil {
		t.Fatal("expected requeue to fail on canceled context")
	}
	if pendingCount(t, q) != 1 {
		t.Fatal("expected original entry to remain pending")
	}
	if n, _ := q.client.XLen(context.Background(), q.cfg.Stream).Result(); n != 1 {
		t.Fatalf("expected no new entry, got len=%d", n)
	}
}

func TestHandleMessageRebuildsExpiredStatus(t *testing.T) {
	q, srv := newTestQueue(t, RedisQueueConfig{})
	msg, job := readPending(t, q)
	srv.Del(q.jobKey(job.ID))

	q.handleMessage(context.Background(), msg, func(context.Context, Job) error { return nil })

	got, ok, err := q.GetJob(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Kind != "cost" || got.ProjectID != "project-1" || got.Status != StatusDone || got.Attempts != 1 {
		t.Fatalf("unexpected rebuilt job: %+v", got)
	}
}

func TestHandleMessageDropsMalformedEntry(t *testing.T) {
	q, _ := newTestQueue(t, RedisQueueConfig{})
	ctx := context.Background()
	q.ensureGroup(ctx)
	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.cfg.Stream, Values: map[string]any{"kind": "cost"}}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	streams, _ := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: "consumer-1",
		Streams:  []string{q.cfg.Stream, ">"},
	}).Result()

	q.handleMessage(ctx, streams[0].Messages[0], func(context.Context, Job) error {
		t.Error("handler must not see malformed entries")
		return nil
	})
	if pendingCount(t, q) != 0 {
		t.Fatal("malformed entry left pending")
	}
}

func TestStartDeliversJobsEnqueuedBeforeGroup(t *testing.T) {
	q, _ := newTestQueue(t, RedisQueueConfig{Stream: "test:early", Group: "workers", Block: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.Enqueue(ctx, "recalc", "project-1", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got := make(chan Job, 1)
	q.Start(ctx, 2, func(_ context.Context, j Job) error {
		got <- j
		return nil
	})
	select {
	case j := <-got:
		if j.Kind != "recalc" || j.ProjectID != "project-1" {
			t.Fatalf("unexpected job: %+v", j)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not delivered")
	}
}

func TestStampRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC)
	if got := parseStamp(stamp(now)); !got.Equal(now) {
		t.Fatalf("stamp round trip = %v", got)
	}
	if !parseStamp("garbage").IsZero() {
		t.Fatal("expected zero time for garbage")
	}
}
