package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"hotelplan/internal/util"
)

type RedisQueueConfig struct {
	Addr     string
	Password string
	Stream   string
	Group    string
	Consumer string
	JobTTL   time.Duration
	// MaxRetries is the total number of attempts per job. Defaults to 1, so a
	// failed stage is recorded as failed and not redelivered.
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
	Logger     *slog.Logger
}

func (c RedisQueueConfig) withDefaults() RedisQueueConfig {
	c.Addr = strings.TrimSpace(c.Addr)
	c.Stream = strings.TrimSpace(c.Stream)
	if c.Group = strings.TrimSpace(c.Group); c.Group == "" {
		c.Group = "default"
	}
	if c.Consumer = strings.TrimSpace(c.Consumer); c.Consumer == "" {
		c.Consumer = util.NewID()
	}
	positive(&c.JobTTL, 24*time.Hour)
	positive(&c.MaxRetries, 1)
	positive(&c.Block, 5*time.Second)
	positive(&c.ClaimIdle, 30*time.Second)
	positive(&c.RetryDelay, 2*time.Second)
	positive(&c.MaxLen, 10000)
	positive(&c.ReadCount, 10)
	positive(&c.ClaimCount, 10)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func positive[T int | int64 | time.Duration](v *T, def T) {
	if *v <= 0 {
		*v = def
	}
}

// RedisJobQueue is a Redis Streams work queue. Entries are acknowledged and
// deleted once settled; retries re-add the entry at the stream tail.
type RedisJobQueue struct {
	client    *redis.Client
	cfg       RedisQueueConfig
	logger    *slog.Logger
	groupOnce sync.Once
}

func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr required")
	}
	if cfg.Stream == "" {
		return nil, errors.New("queue stream required")
	}
	return &RedisJobQueue{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password}),
		cfg:    cfg,
		logger: cfg.Logger.With("stream", cfg.Stream),
	}, nil
}

// Close releases the redis client.
func (q *RedisJobQueue) Close() error {
	return q.client.Close()
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.cfg.Stream, jobID)
}

func (q *RedisJobQueue) addEntry(ctx context.Context, pipe redis.Pipeliner, job Job) {
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		Values: entryValues(job),
	})
}

// Enqueue writes the status hash and the stream entry in one transaction.
func (q *RedisJobQueue) Enqueue(ctx context.Context, kind, projectID string, payload []byte) (Job, error) {
	kind, projectID = strings.TrimSpace(kind), strings.TrimSpace(projectID)
	if kind == "" {
		return Job{}, errors.New("job kind required")
	}
	if projectID == "" {
		return Job{}, errors.New("projectId required")
	}
	now := time.Now().UTC()
	job := Job{
		ID:        util.NewID(),
		Kind:      kind,
		ProjectID: projectID,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := q.jobKey(job.ID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"kind", job.Kind,
			"projectId", job.ProjectID,
			"payload", string(job.Payload),
			"status", job.Status,
			"error", "",
			"attempts", 0,
			"createdAt", stamp(now),
			"updatedAt", stamp(now),
		)
		pipe.Expire(ctx, key, q.cfg.JobTTL)
		q.addEntry(ctx, pipe, job)
		return nil
	})
	if err != nil {
		return Job{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return job, nil
}

// GetJob reads the status hash. Jobs past their TTL are reported missing.
func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (Job, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, false, nil
	}
	res := q.client.HGetAll(ctx, q.jobKey(jobID))
	fields, err := res.Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(fields) == 0 {
		return Job{}, false, nil
	}
	var rec jobRecord
	if err := res.Scan(&rec); err != nil {
		return Job{}, false, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return rec.toJob(jobID), true, nil
}

// Start launches concurrency consumer goroutines that run until ctx is done.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		go q.consume(ctx, fmt.Sprintf("%s-%d", q.cfg.Consumer, i), handler)
	}
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.groupOnce.Do(func() {
		// "0" so jobs enqueued before the first worker started are still delivered.
		err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			q.logger.Warn("queue group create failed", "group", q.cfg.Group, "err", err)
		}
	})
}

func (q *RedisJobQueue) consume(ctx context.Context, consumer string, handler Handler) {
	logger := q.logger.With("consumer", consumer)
	for ctx.Err() == nil {
		msgs, err := q.next(ctx, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue read failed", "err", err)
			if !sleepCtx(ctx, q.cfg.RetryDelay) {
				return
			}
			continue
		}
		for _, msg := range msgs {
			q.handleMessage(ctx, msg, handler)
		}
	}
}

// next returns stale pending entries first, then blocks for new ones.
func (q *RedisJobQueue) next(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: consumer,
		MinIdle:  q.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    q.cfg.ClaimCount,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	if len(claimed) > 0 {
		return claimed, nil
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    q.cfg.ReadCount,
		Block:    q.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (q *RedisJobQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	ref, ok := jobFromEntry(msg)
	if !ok {
		q.logger.Warn("dropping malformed queue entry", "entry_id", msg.ID)
		q.ack(ctx, q.client, msg.ID)
		return
	}
	job, err := q.beginAttempt(ctx, ref)
	if err != nil {
		// left pending; XAUTOCLAIM picks it up again after ClaimIdle
		q.logger.Warn("queue attempt not recorded", "job_id", ref.ID, "err", err)
		return
	}

	logger := q.logger.With("job_id", job.ID, "kind", job.Kind, "project_id", job.ProjectID, "attempt", job.Attempts)
	herr := handler(ctx, job)
	switch {
	case herr == nil:
		err = q.settle(ctx, msg.ID, job.ID, StatusDone, "")
	case job.Attempts >= q.cfg.MaxRetries:
		logger.Error("job failed", "err", herr)
		err = q.settle(ctx, msg.ID, job.ID, StatusFailed, herr.Error())
	default:
		logger.Warn("job attempt failed, requeueing", "err", herr)
		if !sleepCtx(ctx, q.cfg.RetryDelay) {
			return
		}
		err = q.requeue(ctx, msg.ID, job, herr.Error())
	}
	if err != nil {
		logger.Warn("queue settle failed", "err", err)
	}
}

// beginAttempt bumps the attempt counter and marks the job processing. The
// hash is rebuilt from the entry when it expired while the entry waited.
func (q *RedisJobQueue) beginAttempt(ctx context.Context, ref Job) (Job, error) {
	key := q.jobKey(ref.ID)
	now := time.Now().UTC()
	var attempts *redis.IntCmd
	var created *redis.StringCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "createdAt", stamp(now))
		attempts = pipe.HIncrBy(ctx, key, "attempts", 1)
		pipe.HSet(ctx, key,
			"kind", ref.Kind,
			"projectId", ref.ProjectID,
			"payload", string(ref.Payload),
			"status", StatusProcessing,
			"updatedAt", stamp(now),
		)
		pipe.Expire(ctx, key, q.cfg.JobTTL)
		created = pipe.HGet(ctx, key, "createdAt")
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	job := ref
	job.Status = StatusProcessing
	job.Attempts = int(attempts.Val())
	job.CreatedAt = parseStamp(created.Val())
	job.UpdatedAt = now
	return job, nil
}

func (q *RedisJobQueue) settle(ctx context.Context, entryID, jobID, status, errMsg string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.setStatus(ctx, pipe, jobID, status, errMsg)
		q.ack(ctx, pipe, entryID)
		return nil
	})
	return err
}

// requeue re-adds the entry and acknowledges the old one atomically. On
// failure the old entry stays pending.
func (q *RedisJobQueue) requeue(ctx context.Context, entryID string, job Job, errMsg string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.setStatus(ctx, pipe, job.ID, StatusQueued, errMsg)
		q.addEntry(ctx, pipe, job)
		q.ack(ctx, pipe, entryID)
		return nil
	})
	return err
}

func (q *RedisJobQueue) setStatus(ctx context.Context, pipe redis.Pipeliner, jobID, status, errMsg string) {
	key := q.jobKey(jobID)
	pipe.HSet(ctx, key, "status", status, "error", errMsg, "updatedAt", stamp(time.Now()))
	pipe.Expire(ctx, key, q.cfg.JobTTL)
}

func (q *RedisJobQueue) ack(ctx context.Context, c redis.Cmdable, entryID string) {
	c.XAck(ctx, q.cfg.Stream, q.cfg.Group, entryID)
	c.XDel(ctx, q.cfg.Stream, entryID)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
