package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ContagionRadar/internal/domain/models"
	domrepo "ContagionRadar/internal/domain/repository"
	mid "ContagionRadar/internal/middleware"
	pkgkafka "ContagionRadar/pkg/kafka"
	xutil "ContagionRadar/pkg/util"
)

// KafkaObservationsHandler consumes observation messages and records them.
type KafkaObservationsHandler struct {
	topic   string
	proc    mid.Proc
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewKafkaObservationsHandler(topic string, proc mid.Proc, metrics domrepo.Metrics) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{topic: topic, proc: proc, metrics: metrics, now: time.Now}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

type observationMessage struct {
	Symbol    string          `json:"symbol"`
	Chain     string          `json:"chain"`
	Sector    string          `json:"sector"`
	Timestamp json.RawMessage `json:"timestamp"`
	Sentiment float64         `json:"sentiment"`
	Volume    float64         `json:"volume"`
	Price     *float64        `json:"price"`
}

// incoming message schema: {symbol, chain, sector, timestamp, sentiment, volume, price}
// where timestamp is RFC3339 or unix seconds/milliseconds. Decode and
// validation failures are permanent; processing errors are retried.
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var m observationMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode observation: %w", err))
	}
	obs := mid.Normalize(&models.AssetObservation{
		Symbol:    m.Symbol,
		Chain:     m.Chain,
		Sector:    m.Sector,
		Timestamp: parseEventTime(m.Timestamp, h.now()),
		Sentiment: m.Sentiment,
		Volume:    m.Volume,
		Price:     m.Price,
	})
	if err := mid.ValidateObservation(obs); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(err)
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", h.now().Sub(obs.Timestamp).Seconds())

	return h.proc.Process(WithSource(ctx, "kafka"), obs)
}

func parseEventTime(raw json.RawMessage, fallback time.Time) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback.UTC()
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fallback.UTC()
		}
		return xutil.ParseTimeDefault(s, fallback).UTC()
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || n <= 0 {
		return fallback.UTC()
	}
	if n > 1e11 { // ms
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
