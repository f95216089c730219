package logger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) entries() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestNopLoggerAcceptsAllFields(t *testing.T) {
	l := Nop().With(String("component", "test"))
	assert.NotPanics(t, func() {
		l.Info("hello", Int("n", 1), Float64("corr", 0.8), Bool("ok", true), Duration("d", time.Second),
			Strings("assets", []string{"A", "B"}), Any("m", map[string]int{"x": 1}))
		l.Error("failed", Error(errors.New("boom")))
	})
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestCollectorAggregatesDuplicateErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "contagion.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("archive write failed", String("table", "observations"))
	}
	l.Error("kafka publish failed")
	l.RemoveCollector()

	entries := pub.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "contagion.logs", pub.topic)
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 3, counts["archive write failed"])
	assert.Equal(t, 1, counts["kafka publish failed"])
}

func TestLevelFiltersEntries(t *testing.T) {
	path := t.TempDir() + "/app.log"
	l, err := New(&Config{Level: "warn", Output: path, Service: "contagion"})
	require.NoError(t, err)

	l.Info("dropped")
	l.With(String("component", "engine")).Warn("kept", Int("assets", 3), Error(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "contagion", entry["service"])
	assert.EqualValues(t, 3, entry["assets"])
}

func TestEntryKeyIgnoresMapOrder(t *testing.T) {
	a := entryKey("error", "m", map[string]interface{}{"x": 1, "y": "z"}, "c")
	b := entryKey("error", "m", map[string]interface{}{"y": "z", "x": 1}, "c")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, entryKey("error", "m", map[string]interface{}{"x": 2, "y": "z"}, "c"))
}
