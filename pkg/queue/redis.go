package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"EffortLab/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotRunning = errors.New("queue not running")

// RedisQueue is a list-backed work queue with delayed retries in a sorted
// set and a dead-letter list.
type RedisQueue struct {
	log    *logger.Logger
	cfg    Config
	client redis.UniversalClient

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(log *logger.Logger, client redis.UniversalClient, cfg Config) *RedisQueue {
	cfg.normalize()
	if log == nil {
		log = logger.Nop()
	}
	return &RedisQueue{
		log:    log.With(logger.String("component", "queue")),
		cfg:    cfg,
		client: client,
		jobs:   make(map[string]Job),
	}
}

// RegisterJob must be called before Start. A second job for the same type
// is ignored.
func (q *RedisQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[job.Type()]; ok {
		q.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
}

// Start pings Redis and launches the workers and the retry mover. With no
// jobs registered the queue only accepts Enqueue calls.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	q.cancel = stop
	q.running = true

	if len(q.jobs) == 0 {
		return nil
	}
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}
	q.wg.Add(1)
	go q.retryLoop(runCtx)
	q.log.Info("queue started", logger.Int("workers", q.cfg.Workers), logger.Int("jobs", len(q.jobs)))
	return nil
}

// Stop cancels the workers and waits for in-flight messages up to ctx.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for queue workers: %w", ctx.Err())
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	running := q.running
	q.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// DeadLetters returns up to n messages that exhausted their retries.
func (q *RedisQueue) DeadLetters(ctx context.Context, n int64) ([]Message, error) {
	raw, err := q.client.LRange(ctx, q.key("dlq"), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dlq: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (q *RedisQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, q.key("messages")).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.log.Error("brpop", logger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.log.Error("unmarshal queue message", logger.Error(err))
			continue
		}
		if err := q.dispatch(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			q.fail(msg, err)
		}
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, msg Message) error {
	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no job for message type %q", msg.Type)
	}
	return job.Handle(ctx, msg.Payload)
}

func (q *RedisQueue) fail(msg Message, err error) {
	msg.Attempts++
	msg.LastError = err.Error()
	data, merr := json.Marshal(msg)
	if merr != nil {
		q.log.Error("marshal failed message", logger.Error(merr))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if msg.Attempts > q.cfg.RetryLimit {
		q.log.Error("queue message dead-lettered",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		if perr := q.client.LPush(ctx, q.key("dlq"), data).Err(); perr != nil {
			q.log.Error("lpush dlq", logger.Error(perr))
		}
		return
	}

	at := retryAt(time.Now(), q.cfg.RetryDelay, msg.Attempts)
	q.log.Warn("queue message retry scheduled",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err))
	if zerr := q.client.ZAdd(ctx, q.key("retry"), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); zerr != nil {
		q.log.Error("zadd retry", logger.Error(zerr))
	}
}

func (q *RedisQueue) retryLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(max(q.cfg.RetryDelay/2, 100*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.moveDue(ctx)
		}
	}
}

func (q *RedisQueue) moveDue(ctx context.Context) {
	due, err := q.client.ZRangeByScore(ctx, q.key("retry"), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.log.Error("fetch due retries", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.key("retry"), member)
		pipe.LPush(ctx, q.key("messages"), member)
		if _, err := pipe.Exec(ctx); err != nil {
			if ctx.Err() == nil {
				q.log.Error("requeue retry", logger.Error(err))
			}
			return
		}
	}
}

func (q *RedisQueue) key(suffix string) string {
	return q.cfg.KeyPrefix + ":" + suffix
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
