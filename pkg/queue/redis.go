package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ContagionRadar/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteDue moves due retries back onto the pending list in one step so two
// instances sharing the keys never deliver the same retry twice.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

const promoteBatch = 100

// RedisQueue is a list-backed work queue. Pending messages live in a list,
// scheduled retries in a sorted set scored by due time in milliseconds and
// exhausted messages in a dead letter list.
type RedisQueue struct {
	logger *logger.Logger
	config *QueueConfig
	client *redis.Client

	// producer-only queues accept any type and run no workers
	producerOnly bool

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	stopCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	keyPrefix string
	retryTick time.Duration
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithProducerOnly makes the queue enqueue-only. Another process is expected
// to run the workers against the same keys.
func WithProducerOnly() RedisQueueOption {
	return func(r *RedisQueue) { r.producerOnly = true }
}

// WithRetryInterval sets how often due retries are promoted.
func WithRetryInterval(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) {
		if d > 0 {
			r.retryTick = d
		}
	}
}

// NewRedisQueue creates a queue; nothing touches redis until Start.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 5 * time.Minute
		if cfg.MaxRetryDelay < cfg.RetryDelay {
			cfg.MaxRetryDelay = cfg.RetryDelay
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger:    lgr,
		config:    &cfg,
		client:    client,
		jobs:      make(map[string]Job),
		stopCh:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "contagion:alerts",
		retryTick: time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob binds job to its message type. Producer-only queues ignore it.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.producerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings redis and launches the workers and the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	if r.producerOnly {
		r.logger.Info("redis queue started without workers", logger.String("prefix", r.keyPrefix))
		return nil
	}
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryLoop()

	r.logger.Info("redis queue started",
		logger.String("prefix", r.keyPrefix),
		logger.Int("workers", r.config.Workers),
	)
	return nil
}

// Stop lets in-flight jobs finish until ctx expires, then cancels them.
// A cancelled message goes back to the head of the pending list.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		r.logger.Warn("redis queue stop timed out", logger.Error(ctx.Err()))
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue appends a message for msgType.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("queue not running")
	}
	if !r.producerOnly && !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    body,
		EnqueuedAt: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			r.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		default:
		}
		raw, ok := r.pop()
		if !ok {
			continue
		}
		r.process(raw)
	}
}

// pop waits up to a second so the stop signal is seen promptly.
func (r *RedisQueue) pop() (string, bool) {
	res, err := r.client.BRPop(r.ctx, time.Second, r.pendingKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return "", false
		}
		r.logger.Error("brpop failed", logger.Error(err))
		select {
		case <-time.After(time.Second):
		case <-r.stopCh:
		}
		return "", false
	}
	if len(res) < 2 {
		return "", false
	}
	return res[1], true
}

func (r *RedisQueue) process(raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.logger.Error("malformed queue entry", logger.Error(err))
		r.pushDead(raw)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		msg.LastError = "no job registered for type " + msg.Type
		r.bury(msg)
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	if err == nil {
		r.logger.Debug("job done",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", time.Since(start)),
		)
		return
	}
	if errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
		r.requeue(msg)
		return
	}
	r.fail(msg, job, err)
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	msg.LastError = err.Error()
	if msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("job failed permanently",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts+1),
			logger.Error(err),
		)
		r.bury(msg)
		return
	}

	msg.Attempts++
	due := r.now().Add(retryDelay(r.config.RetryDelay, r.config.MaxRetryDelay, msg.Attempts))
	r.logger.Warn("job failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", due.UTC().Format(time.RFC3339)),
		logger.Error(err),
	)
	data, merr := json.Marshal(msg)
	if merr != nil {
		r.logger.Error("marshal retry", logger.Error(merr))
		return
	}
	if zerr := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: data,
	}).Err(); zerr != nil {
		r.logger.Error("schedule retry", logger.String("id", msg.ID), logger.Error(zerr))
	}
}

func (r *RedisQueue) requeue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	// RPUSH puts it back where BRPOP takes from next
	if err := r.client.RPush(context.Background(), r.pendingKey(), data).Err(); err != nil {
		r.logger.Error("requeue cancelled message", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) bury(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dead letter", logger.Error(err))
		return
	}
	r.pushDead(string(data))
}

func (r *RedisQueue) pushDead(raw string) {
	if err := r.client.LPush(context.Background(), r.deadKey(), raw).Err(); err != nil {
		r.logger.Error("push dead letter", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.retryTick)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.promote(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("promote retries", logger.Error(err))
			}
		}
	}
}

// promote moves retries that are due onto the pending list.
func (r *RedisQueue) promote(ctx context.Context) (int64, error) {
	now := strconv.FormatInt(r.now().UnixMilli(), 10)
	return promoteDue.Run(ctx, r.client, []string{r.retryKey(), r.pendingKey()}, now, promoteBatch).Int64()
}

// Depth reports the number of pending, retrying and dead-lettered messages.
func (r *RedisQueue) Depth(ctx context.Context) (Depth, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.pendingKey())
	retry := pipe.ZCard(ctx, r.retryKey())
	dead := pipe.LLen(ctx, r.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Depth{}, fmt.Errorf("queue depth: %w", err)
	}
	return Depth{Pending: pending.Val(), Retry: retry.Val(), Dead: dead.Val()}, nil
}

// DeadLetters returns up to limit dead-lettered messages, newest first.
func (r *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := r.client.LRange(ctx, r.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dead letters: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			r.logger.Warn("skip malformed dead letter", logger.Error(err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Redrive moves up to limit dead letters back to pending with a fresh
// attempt budget and returns how many moved.
func (r *RedisQueue) Redrive(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	moved := 0
	for moved < limit {
		raw, err := r.client.RPop(ctx, r.deadKey()).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("rpop dead letter: %w", err)
		}
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			r.logger.Warn("drop malformed dead letter", logger.Error(err))
			continue
		}
		msg.Attempts = 0
		msg.LastError = ""
		data, err := json.Marshal(msg)
		if err != nil {
			return moved, fmt.Errorf("marshal message: %w", err)
		}
		if err := r.client.LPush(ctx, r.pendingKey(), data).Err(); err != nil {
			return moved, fmt.Errorf("lpush: %w", err)
		}
		moved++
	}
	if moved > 0 {
		r.logger.Info("dead letters redriven", logger.Int("count", moved))
	}
	return moved, nil
}

func (r *RedisQueue) pendingKey() string { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string   { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadKey() string    { return r.keyPrefix + ":dlq" }
