package kafka

import (
	"context"
	"fmt"
	"time"

	applogger "ContagionRadar/pkg/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const traceHeader = "trace_id"

// ConsumerHook observes message handling. Before may derive the handling
// context; an error from Before skips the handler and counts as a failed
// attempt. Failed runs once per message after retries are exhausted.
type ConsumerHook interface {
	Before(ctx context.Context, topic string, km kafka.Message) (context.Context, error)
	After(ctx context.Context, topic string, km kafka.Message, err error)
	Failed(ctx context.Context, topic string, km kafka.Message, err error)
}

// HookFuncs adapts plain functions to ConsumerHook. Nil fields are no-ops.
type HookFuncs struct {
	OnBefore func(ctx context.Context, topic string, km kafka.Message) (context.Context, error)
	OnAfter  func(ctx context.Context, topic string, km kafka.Message, err error)
	OnFailed func(ctx context.Context, topic string, km kafka.Message, err error)
}

func (h HookFuncs) Before(ctx context.Context, topic string, km kafka.Message) (context.Context, error) {
	if h.OnBefore == nil {
		return ctx, nil
	}
	return h.OnBefore(ctx, topic, km)
}

func (h HookFuncs) After(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.OnAfter != nil {
		h.OnAfter(ctx, topic, km, err)
	}
}

func (h HookFuncs) Failed(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.OnFailed != nil {
		h.OnFailed(ctx, topic, km, err)
	}
}

// HookChain runs hooks in order for Before and Failed and in reverse for
// After. A panicking Before becomes a permanent error; panics elsewhere are
// swallowed.
type HookChain []ConsumerHook

// NewHookChain drops nil hooks.
func NewHookChain(hooks ...ConsumerHook) HookChain {
	chain := make(HookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	return chain
}

func (c HookChain) Before(ctx context.Context, topic string, km kafka.Message) (context.Context, error) {
	for _, h := range c {
		next, err := safeBefore(h, ctx, topic, km)
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c HookChain) After(ctx context.Context, topic string, km kafka.Message, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		h := c[i]
		quietly(func() { h.After(ctx, topic, km, err) })
	}
}

func (c HookChain) Failed(ctx context.Context, topic string, km kafka.Message, err error) {
	for _, h := range c {
		h := h
		quietly(func() { h.Failed(ctx, topic, km, err) })
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, topic string, km kafka.Message) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = ctx, Permanent(fmt.Errorf("hook panic: %v", r))
		}
	}()
	return h.Before(ctx, topic, km)
}

func quietly(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type ctxKey int

const (
	traceIDKey ctxKey = iota
	startKey
)

// WithTraceID attaches id to ctx. Empty ids are ignored.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, id)
}

func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

func headerValue(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// traceHeaders propagates the trace id carried by ctx onto outgoing messages.
func traceHeaders(ctx context.Context) []kafka.Header {
	if id := TraceIDFrom(ctx); id != "" {
		return []kafka.Header{{Key: traceHeader, Value: []byte(id)}}
	}
	return nil
}

// TraceHook takes the trace id from the message headers, generating one
// when absent, and records when handling started.
func TraceHook() ConsumerHook {
	return HookFuncs{
		OnBefore: func(ctx context.Context, _ string, km kafka.Message) (context.Context, error) {
			id := headerValue(km, traceHeader)
			if id == "" {
				id = uuid.NewString()
			}
			return context.WithValue(WithTraceID(ctx, id), startKey, time.Now()), nil
		},
	}
}

// LoggingHook logs every failed attempt at warn level.
func LoggingHook(l *applogger.Logger) ConsumerHook {
	return HookFuncs{
		OnAfter: func(ctx context.Context, topic string, km kafka.Message, err error) {
			if err == nil {
				return
			}
			fields := []applogger.Field{
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.String("trace_id", TraceIDFrom(ctx)),
				applogger.Bool("permanent", IsPermanent(err)),
				applogger.Error(err),
			}
			if start, ok := ctx.Value(startKey).(time.Time); ok {
				fields = append(fields, applogger.Duration("elapsed", time.Since(start)))
			}
			l.Warn("kafka attempt failed", fields...)
		},
	}
}
