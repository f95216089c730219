package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	applogger "ContagionRadar/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// permanentError marks a handler failure that a retry cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer skips retries and sends the message
// straight to the DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	AutoOffsetReset string
	WorkerCount     int
	BufferSize      int
	RetryMax        int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	DLQTopic        string
	MinBytes        int
	MaxBytes        int
	Logger          *applogger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerAutoOffsetReset accepts "earliest" or "latest".
func WithConsumerAutoOffsetReset(reset string) ConsumerOption {
	return func(c *ConsumerConfig) { c.AutoOffsetReset = reset }
}

// WithConsumerWorkers sets the number of lanes. A partition always maps to
// the same lane, so observations of one asset are applied in offset order.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize sets the capacity of each lane.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Consumer reads registered topics and hands messages to a fixed set of
// lanes, one goroutine each.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	lanes    []chan *message
	dlq      *kafka.Writer
	hook     ConsumerHook
	log      *applogger.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	readerWG sync.WaitGroup
	workerWG sync.WaitGroup
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:         "contagion-radar",
		AutoOffsetReset: "earliest",
		WorkerCount:     1,
		BufferSize:      64,
		RetryMax:        3,
		BackoffMin:      50 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		MinBytes:        1,
		MaxBytes:        10e6,
		Logger:          applogger.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		lanes:    make([]chan *message, cfg.WorkerCount),
		stopChan: make(chan struct{}),
		hook:     HookChain{},
		log:      cfg.Logger.With(applogger.String("component", "kafka_consumer")),
	}
	for i := range c.lanes {
		c.lanes[i] = make(chan *message, cfg.BufferSize)
	}

	initMetrics()

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers a message handler for a specific topic. The
// first handler registered for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and launches the lanes.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: startOffset(c.cfg.AutoOffsetReset),
		})
	}

	for i, lane := range c.lanes {
		c.workerWG.Add(1)
		go c.runLane(i, lane)
	}
	for topic, reader := range c.readers {
		c.readerWG.Add(1)
		go c.readLoop(topic, reader)
	}

	topics := make([]string, 0, len(c.readers))
	for topic := range c.readers {
		topics = append(topics, topic)
	}
	c.log.Info("consumer started",
		applogger.Strings("topics", topics),
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("lanes", len(c.lanes)),
	)
	return nil
}

// Stop halts the readers, lets every lane finish what it already holds and
// closes the underlying connections.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)

		// readers are the only senders; lanes close once they are gone
		c.readerWG.Wait()
		for _, lane := range c.lanes {
			close(lane)
		}
		stopErr = waitGroupCtx(ctx, &c.workerWG)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Error("close reader failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer failed", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("consumer stopped")
		}
	})
	return stopErr
}

func waitGroupCtx(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer lanes: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// readLoop polls with a short deadline so a stop request is noticed promptly.
func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.readerWG.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Error("fetch message failed", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}

		lane := c.lanes[laneFor(topic, km.Partition, len(c.lanes))]
		select {
		case lane <- &message{topic: topic, km: km}:
			consumerLaneDepth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.stopChan:
			// uncommitted, so the group redelivers it
			return
		}
	}
}

// laneFor pins a (topic, partition) pair to one lane.
func laneFor(topic string, partition, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte(strconv.Itoa(partition)))
	return int(h.Sum32() % uint32(lanes))
}

func (c *Consumer) runLane(id int, lane <-chan *message) {
	defer c.workerWG.Done()

	for msg := range lane {
		handler, ok := c.handlers[msg.topic]
		if !ok {
			continue
		}
		start := time.Now()
		c.process(handler, msg)
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}
	c.log.Debug("lane drained", applogger.Int("lane", id))
}

// process runs the handler with retries, parks exhausted or permanent
// failures in the DLQ and commits the offset once the message is settled.
func (c *Consumer) process(handler MessageHandler, msg *message) {
	traceID, attempts, err := c.handleWithRetry(handler, msg)

	settled := err == nil
	if err != nil {
		c.hook.Failed(WithTraceID(context.Background(), traceID), msg.topic, msg.km, err)
		c.log.Error("message handling failed",
			applogger.String("topic", msg.topic),
			applogger.Int("partition", msg.km.Partition),
			applogger.Int64("offset", msg.km.Offset),
			applogger.Int("attempts", attempts),
			applogger.Bool("permanent", IsPermanent(err)),
			applogger.Error(err),
		)
		settled = c.publishDLQ(msg, err, attempts, traceID)
	}

	// an unsettled message stays uncommitted and is redelivered after a rebalance
	if settled {
		if reader := c.readers[msg.topic]; reader != nil {
			_ = c.commitWithRetry(reader, msg.km, 3)
		}
	}
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg *message) (traceID string, attempts int, err error) {
	for {
		attempts++
		err = c.handleOnce(handler, msg, &traceID)
		if err == nil || IsPermanent(err) || attempts > c.cfg.RetryMax {
			return traceID, attempts, err
		}
		consumerRetries.WithLabelValues(msg.topic).Inc()
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stopChan:
			return traceID, attempts, err
		}
	}
}

func (c *Consumer) handleOnce(handler MessageHandler, msg *message, traceID *string) (err error) {
	ctx, err := c.hook.Before(context.Background(), msg.topic, msg.km)
	if err != nil {
		return err
	}
	if id := TraceIDFrom(ctx); id != "" {
		*traceID = id
	}
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
		c.hook.After(ctx, msg.topic, msg.km, err)
	}()
	return handler.Handle(ctx, msg.km.Value)
}

// publishDLQ reports whether the message no longer needs to stay uncommitted.
func (c *Consumer) publishDLQ(msg *message, cause error, attempts int, traceID string) bool {
	if c.dlq == nil {
		// without a DLQ a poison message would block its partition forever
		return IsPermanent(cause)
	}
	reason := "exhausted"
	if IsPermanent(cause) {
		reason = "permanent"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.dlq.WriteMessages(ctx, dlqMessage(msg.topic, msg.km, cause, attempts, traceID)); err != nil {
		c.log.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	consumerDLQ.WithLabelValues(msg.topic, reason).Inc()
	return true
}

// dlqMessage keeps the original key so the DLQ preserves per-asset order.
func dlqMessage(topic string, km kafka.Message, cause error, attempts int, traceID string) kafka.Message {
	headers := []kafka.Header{
		{Key: "source_topic", Value: []byte(topic)},
		{Key: "source_partition", Value: []byte(strconv.Itoa(km.Partition))},
		{Key: "source_offset", Value: []byte(strconv.FormatInt(km.Offset, 10))},
		{Key: "error", Value: []byte(cause.Error())},
		{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
	}
	if traceID != "" {
		headers = append(headers, kafka.Header{Key: "trace_id", Value: []byte(traceID)})
	}
	return kafka.Message{
		Key:     km.Key,
		Value:   km.Value,
		Time:    time.Now().UTC(),
		Headers: headers,
	}
}

// commitWithRetry commits a single message offset with bounded retries.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, max int) error {
	if max <= 0 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit failed",
		applogger.String("topic", km.Topic),
		applogger.Int64("offset", km.Offset),
		applogger.Int("attempts", max),
		applogger.Error(err),
	)
	return err
}

func startOffset(reset string) int64 {
	if reset == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// up to 50% jitter
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp - jitter
}
