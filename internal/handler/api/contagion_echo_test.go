package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ContagionRadar/internal/domain/models"
	mid "ContagionRadar/internal/middleware"
	"ContagionRadar/internal/repository"
	"ContagionRadar/internal/service/metrics"
	"ContagionRadar/internal/service/ratelimit"
	"ContagionRadar/internal/services/contagion"
	"ContagionRadar/internal/usecase"
	"ContagionRadar/pkg/cache"
	xhttp "ContagionRadar/pkg/http"
	pkgmetrics "ContagionRadar/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv       *xhttp.Server
	svc       *usecase.ContagionService
	snapshots *repository.CacheSnapshotStore
	api       *metrics.APIMetrics
}

func newFixture(t *testing.T, opts ...HandlerOption) *fixture {
	t.Helper()
	return newThrottledFixture(t, 0, opts...)
}

// newThrottledFixture limits each symbol to maxRPS observations per second.
func newThrottledFixture(t *testing.T, maxRPS int, opts ...HandlerOption) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec := pkgmetrics.NewWithRegistry(reg)
	svc := usecase.NewContagionService(contagion.New(contagion.Config{}), rec)
	proc := usecase.NewObservationProcessor(svc, nil, rec, nil, 0, 0)
	pipe := mid.NewIngestPipeline(proc, rec, mid.WithMaxRPS(maxRPS))

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	snapshots := repository.NewCacheSnapshotStore(mem, time.Hour)
	api := metrics.NewAPIMetrics(reg)

	base := []HandlerOption{WithSnapshots(snapshots), WithAPIMetrics(api)}
	h := NewContagionEchoHandler(nil, svc, pipe, append(base, opts...)...)
	srv := xhttp.NewServer([]xhttp.Handler{h}, xhttp.WithRegistry(reg, reg))
	return &fixture{srv: srv, svc: svc, snapshots: snapshots, api: api}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type list[T any] struct {
	Rows  []T   `json:"rows"`
	Total int64 `json:"total"`
}

func (f *fixture) do(t *testing.T, method, target, body string) envelope {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func observationBody(symbol string, i int, sentiment float64) string {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
	return fmt.Sprintf(`{"symbol":%q,"timestamp":%q,"sentiment":%g,"volume":%d}`, symbol, ts.Format(time.RFC3339), sentiment, 1000+10*i)
}

func jump(i int) float64 {
	if i >= 25 {
		return 0.6
	}
	return 0.01 * float64(i%3)
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	for _, sym := range []string{"b", "a"} {
		for i := 0; i < 30; i++ {
			env := f.do(t, http.MethodPost, "/api/observations", observationBody(sym, i, jump(i)))
			require.Equal(t, http.StatusCreated, env.Status)
		}
	}
}

func TestIngestAndQuery(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	env := f.do(t, http.MethodGet, "/api/history?symbol=a", "")
	require.Equal(t, http.StatusOK, env.Status)
	var hist list[models.AssetObservation]
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.EqualValues(t, 30, hist.Total)
	assert.Equal(t, "A", hist.Rows[0].Symbol)

	env = f.do(t, http.MethodGet, "/api/correlations?asset=A", "")
	var edges list[models.CorrelationEdge]
	require.NoError(t, json.Unmarshal(env.Data, &edges))
	require.Len(t, edges.Rows, 1)
	assert.Equal(t, "B", edges.Rows[0].AssetB)

	env = f.do(t, http.MethodGet, "/api/relationships?a=a&b=b", "")
	require.Equal(t, http.StatusOK, env.Status)

	env = f.do(t, http.MethodGet, "/api/contagion?limit=2", "")
	var events list[models.ContagionEvent]
	require.NoError(t, json.Unmarshal(env.Data, &events))
	assert.NotZero(t, events.Total)
	assert.LessOrEqual(t, events.Total, int64(2))

	env = f.do(t, http.MethodGet, "/api/stats", "")
	var stats models.EngineStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 2, stats.TrackedAssets)
	assert.Equal(t, 1, stats.CorrelationEdges)

	assert.Positive(t, testutil.CollectAndCount(f.api.Latency))
}

func TestValidationAndNotFound(t *testing.T) {
	f := newFixture(t)

	env := f.do(t, http.MethodPost, "/api/observations", `{"symbol":"","sentiment":2}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = f.do(t, http.MethodPost, "/api/observations", `{"symbol":"ETH","volume":-1}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = f.do(t, http.MethodGet, "/api/correlations", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = f.do(t, http.MethodGet, "/api/relationships?a=X&b=Y", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = f.do(t, http.MethodGet, "/api/relationships?a=X&b=X", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)

	env = f.do(t, http.MethodGet, "/api/chains?chain=cosmos", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = f.do(t, http.MethodGet, "/api/history?symbol=NOPE", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	env = f.do(t, http.MethodGet, "/api/rotations?limit=50", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestIngestBatch(t *testing.T) {
	f := newFixture(t)
	body := `{"observations":[` + observationBody("eth", 0, 0.1) + `,` + observationBody("sol", 0, 0.2) + `]}`
	env := f.do(t, http.MethodPost, "/api/observations/batch", body)
	require.Equal(t, http.StatusCreated, env.Status)

	var res batchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Accepted)
	assert.Empty(t, res.Rejected)

	env = f.do(t, http.MethodPost, "/api/observations/batch", `{"observations":[]}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestIngestBatchReportsThrottledObservations(t *testing.T) {
	f := newThrottledFixture(t, 3)
	items := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		items = append(items, observationBody("eth", i, 0.1))
	}
	env := f.do(t, http.MethodPost, "/api/observations/batch", `{"observations":[`+strings.Join(items, ",")+`]}`)
	require.Equal(t, http.StatusCreated, env.Status)

	var res batchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 3, res.Accepted)
	require.Len(t, res.Rejected, 5)
	for i, r := range res.Rejected {
		assert.Equal(t, "ERR_RATE_LIMITED", r.Code)
		assert.Equal(t, float64(3+i), r.Params["index"])
	}
	assert.Len(t, f.svc.History("ETH"), res.Accepted)

	env = f.do(t, http.MethodPost, "/api/observations", observationBody("eth", 9, 0.1))
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
}

func TestIngestRateLimited(t *testing.T) {
	f := newFixture(t, WithRateLimiter(ratelimit.New(0.001, 1)))

	env := f.do(t, http.MethodPost, "/api/observations", observationBody("eth", 0, 0.1))
	assert.Equal(t, http.StatusCreated, env.Status)
	env = f.do(t, http.MethodPost, "/api/observations", observationBody("eth", 1, 0.1))
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.api.Throttle.WithLabelValues("ingest")))
}

func TestLatestSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := f.do(t, http.MethodGet, "/api/latest?origin=ETH", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	sig := models.ContagionSignal{Event: models.ContagionEvent{ID: "e1", OriginAsset: "ETH"}, Severity: models.SeverityHigh}
	require.NoError(t, f.snapshots.PublishContagion(ctx, sig))
	require.NoError(t, f.snapshots.PublishRotation(ctx, models.SectorRotation{ID: "r1", FromSector: "defi", ToSector: "gaming"}))

	env = f.do(t, http.MethodGet, "/api/latest?origin=eth", "")
	require.Equal(t, http.StatusOK, env.Status)
	var got models.ContagionSignal
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "e1", got.Event.ID)

	env = f.do(t, http.MethodGet, "/api/latest", "")
	var all list[models.ContagionSignal]
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.EqualValues(t, 1, all.Total)

	env = f.do(t, http.MethodGet, "/api/latest/rotation", "")
	var rot models.SectorRotation
	require.NoError(t, json.Unmarshal(env.Data, &rot))
	assert.Equal(t, "r1", rot.ID)
}

func TestResetClearsEngine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.do(t, http.MethodPost, "/api/observations", observationBody("eth", 0, 0.1))
	require.Equal(t, 1, f.svc.Stats().TrackedAssets)
	require.NoError(t, f.snapshots.PublishRotation(ctx, models.SectorRotation{ID: "r1"}))

	env := f.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, env.Status)
	assert.Zero(t, f.svc.Stats().TrackedAssets)

	_, err := f.snapshots.LatestRotation(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	f = newFixture(t, WithHealthCheck("clickhouse", func(context.Context) error { return errors.New("dial timeout") }))
	rec = httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "dial timeout")
}
