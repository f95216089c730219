package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ContagionRadar/internal/domain/models"
	domrepo "ContagionRadar/internal/domain/repository"
	mid "ContagionRadar/internal/middleware"
	"ContagionRadar/internal/service/metrics"
	"ContagionRadar/internal/service/ratelimit"
	"ContagionRadar/internal/usecase"
	xhttp "ContagionRadar/pkg/http"
	xlogger "ContagionRadar/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// ContagionEchoHandler exposes engine queries and observation ingest over Echo.
type ContagionEchoHandler struct {
	logger    *xlogger.Logger
	svc       *usecase.ContagionService
	ingest    mid.Proc
	snapshots domrepo.SnapshotStore
	rl        *ratelimit.Limiter
	metrics   *metrics.APIMetrics
	alerts    AlertQueue
	checks    map[string]HealthCheck
	now       func() time.Time
}

type HandlerOption func(*ContagionEchoHandler)

// WithSnapshots enables the /api/latest endpoints.
func WithSnapshots(s domrepo.SnapshotStore) HandlerOption {
	return func(h *ContagionEchoHandler) { h.snapshots = s }
}

// WithRateLimiter throttles ingest per client IP.
func WithRateLimiter(rl *ratelimit.Limiter) HandlerOption {
	return func(h *ContagionEchoHandler) { h.rl = rl }
}

func WithAPIMetrics(m *metrics.APIMetrics) HandlerOption {
	return func(h *ContagionEchoHandler) { h.metrics = m }
}

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *ContagionEchoHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func NewContagionEchoHandler(logger *xlogger.Logger, svc *usecase.ContagionService, ingest mid.Proc, opts ...HandlerOption) *ContagionEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &ContagionEchoHandler{
		logger: logger,
		svc:    svc,
		ingest: ingest,
		checks: make(map[string]HealthCheck),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ContagionEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/observations", h.Ingest)
	g.POST("/observations/batch", h.IngestBatch)
	g.GET("/contagion", h.ContagionHistory)
	g.GET("/correlations", h.Correlations)
	g.GET("/relationships", h.Relationship)
	g.GET("/chains", h.Chains)
	g.GET("/rotations", h.Rotations)
	g.GET("/history", h.History)
	g.GET("/stats", h.Stats)
	g.GET("/latest", h.Latest)
	g.GET("/latest/rotation", h.LatestRotation)
	g.POST("/reset", h.Reset)
	h.registerAlertRoutes(g)
}

// toAppError maps domain errors to API errors.
func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrEmptySymbol), errors.Is(err, models.ErrInvalidObservation):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrThrottled):
		return xhttp.TooManyRequestsError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrPipelineStopped):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

func (h *ContagionEchoHandler) throttled(c echo.Context, endpoint string) bool {
	if h.rl == nil || h.rl.Allow(c.RealIP()) {
		return false
	}
	h.metrics.Throttled(endpoint)
	return true
}

func rateLimitedResponse(c echo.Context) error {
	return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests"))
}

func (h *ContagionEchoHandler) Ingest(c echo.Context) error {
	start := time.Now()
	const endpoint = "ingest"
	if h.throttled(c, endpoint) {
		return rateLimitedResponse(c)
	}

	req := &models.ObservationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Observe(endpoint, start, true)
		return xhttp.BadRequestResponse(c, verr)
	}
	obs := req.ToObservation(h.now().UTC())
	ctx := usecase.WithSource(c.Request().Context(), "http")
	if err := h.ingest.Process(ctx, &obs); err != nil {
		h.metrics.Observe(endpoint, start, true)
		h.logger.Warn("ingest rejected", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	h.metrics.Observe(endpoint, start, false)
	return xhttp.CreatedResponse(c, obs)
}

type batchResult struct {
	Accepted int               `json:"accepted"`
	Rejected []*xhttp.AppError `json:"rejected,omitempty"`
}

func (h *ContagionEchoHandler) IngestBatch(c echo.Context) error {
	start := time.Now()
	const endpoint = "ingest_batch"
	if h.throttled(c, endpoint) {
		return rateLimitedResponse(c)
	}

	req := &models.ObservationBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Observe(endpoint, start, true)
		return xhttp.BadRequestResponse(c, verr)
	}
	now := h.now().UTC()
	ctx := usecase.WithSource(c.Request().Context(), "http")
	res := batchResult{}
	for i, r := range req.Observations {
		obs := r.ToObservation(now)
		if err := h.ingest.Process(ctx, &obs); err != nil {
			res.Rejected = append(res.Rejected, toAppError(err).WithParam("index", i))
			continue
		}
		res.Accepted++
	}
	h.metrics.Observe(endpoint, start, res.Accepted == 0)
	return xhttp.CreatedResponse(c, res)
}

func (h *ContagionEchoHandler) ContagionHistory(c echo.Context) error {
	start := time.Now()
	req := &models.ContagionHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events := h.svc.ContagionHistory(req.Limit)
	h.metrics.Observe("contagion", start, false)
	return xhttp.ListResponse(c, events, int64(len(events)))
}

func (h *ContagionEchoHandler) Correlations(c echo.Context) error {
	start := time.Now()
	req := &models.CorrelationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	edges := h.svc.Correlations(strings.ToUpper(req.Asset))
	h.metrics.Observe("correlations", start, false)
	return xhttp.ListResponse(c, edges, int64(len(edges)))
}

func (h *ContagionEchoHandler) Relationship(c echo.Context) error {
	start := time.Now()
	req := &models.RelationshipRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rel, err := h.svc.Relationship(strings.ToUpper(req.A), strings.ToUpper(req.B))
	h.metrics.Observe("relationships", start, err != nil)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, rel)
}

func (h *ContagionEchoHandler) Chains(c echo.Context) error {
	start := time.Now()
	req := &models.ChainMetricsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	chains, err := h.svc.ChainMetrics(req.Chain)
	h.metrics.Observe("chains", start, err != nil)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, chains, int64(len(chains)))
}

func (h *ContagionEchoHandler) Rotations(c echo.Context) error {
	start := time.Now()
	req := &models.RotationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rotations := h.svc.SectorRotations(req.Limit)
	h.metrics.Observe("rotations", start, false)
	return xhttp.ListResponse(c, rotations, int64(len(rotations)))
}

func (h *ContagionEchoHandler) History(c echo.Context) error {
	req := &models.AssetHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	history := h.svc.History(strings.ToUpper(req.Symbol))
	if len(history) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("asset %s not tracked", strings.ToUpper(req.Symbol)))
	}
	return xhttp.ListResponse(c, history, int64(len(history)))
}

func (h *ContagionEchoHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Stats())
}

func (h *ContagionEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	if h.snapshots == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("snapshots disabled"))
	}
	req := &models.LatestSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if req.Origin == "" {
		signals, err := h.snapshots.LatestSignals(ctx)
		h.metrics.Observe("latest", start, err != nil)
		if err != nil {
			h.logger.Error("latest signals", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, toAppError(err))
		}
		return xhttp.ListResponse(c, signals, int64(len(signals)))
	}
	sig, err := h.snapshots.LatestSignal(ctx, req.Origin)
	h.metrics.Observe("latest", start, err != nil && !errors.Is(err, models.ErrNotFound))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, sig)
}

func (h *ContagionEchoHandler) LatestRotation(c echo.Context) error {
	if h.snapshots == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("snapshots disabled"))
	}
	rot, err := h.snapshots.LatestRotation(c.Request().Context())
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, rot)
}

func (h *ContagionEchoHandler) Reset(c echo.Context) error {
	h.svc.Reset()
	if h.snapshots != nil {
		if err := h.snapshots.Clear(c.Request().Context()); err != nil {
			h.logger.Warn("clear snapshots", xlogger.Error(err))
		}
	}
	h.logger.Info("engine state reset", xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, h.svc.Stats())
}

type healthResponse struct {
	Status string             `json:"status"`
	Stats  models.EngineStats `json:"stats"`
	Checks map[string]string  `json:"checks,omitempty"`
}

func (h *ContagionEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Stats: h.svc.Stats()}
	if len(h.checks) > 0 {
		res.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return c.JSON(http.StatusServiceUnavailable, res)
	}
	return c.JSON(http.StatusOK, res)
}
