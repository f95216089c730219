package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"ContagionRadar/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlertQueue struct {
	depth     queue.Depth
	dead      []queue.Message
	lastLimit int64
	redriven  int
	err       error
}

func (q *fakeAlertQueue) Depth(context.Context) (queue.Depth, error) { return q.depth, q.err }

func (q *fakeAlertQueue) DeadLetters(_ context.Context, limit int64) ([]queue.Message, error) {
	q.lastLimit = limit
	return q.dead, q.err
}

func (q *fakeAlertQueue) Redrive(_ context.Context, limit int) (int, error) {
	if q.err != nil {
		return 0, q.err
	}
	n := len(q.dead)
	if n > limit {
		n = limit
	}
	q.redriven += n
	q.dead = q.dead[n:]
	return n, nil
}

func TestAlertEndpointsDisabled(t *testing.T) {
	f := newFixture(t)
	env := f.do(t, http.MethodGet, "/api/alerts/queue", "")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestAlertQueueEndpoints(t *testing.T) {
	q := &fakeAlertQueue{
		depth: queue.Depth{Pending: 2, Retry: 1, Dead: 2},
		dead:  []queue.Message{{ID: "a", Type: "contagion.alert"}, {ID: "b", Type: "contagion.alert"}},
	}
	f := newFixture(t, WithAlertQueue(q))

	env := f.do(t, http.MethodGet, "/api/alerts/queue", "")
	require.Equal(t, http.StatusOK, env.Status)
	var d queue.Depth
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, q.depth, d)

	env = f.do(t, http.MethodGet, "/api/alerts/dead-letters", "")
	var dead list[queue.Message]
	require.NoError(t, json.Unmarshal(env.Data, &dead))
	assert.EqualValues(t, 2, dead.Total)
	assert.EqualValues(t, 50, q.lastLimit)

	env = f.do(t, http.MethodGet, "/api/alerts/dead-letters?limit=501", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = f.do(t, http.MethodPost, "/api/alerts/redrive", `{"limit":1}`)
	require.Equal(t, http.StatusOK, env.Status)
	var out map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 1, out["redriven"])
	assert.Len(t, q.dead, 1)
}

func TestAlertQueueUnavailable(t *testing.T) {
	f := newFixture(t, WithAlertQueue(&fakeAlertQueue{err: errors.New("connection refused")}))
	env := f.do(t, http.MethodGet, "/api/alerts/queue", "")
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
}
