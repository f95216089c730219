package api

import (
	"context"
	"time"

	"ContagionRadar/internal/domain/models"
	xhttp "ContagionRadar/pkg/http"
	xlogger "ContagionRadar/pkg/logger"
	"ContagionRadar/pkg/queue"

	"github.com/labstack/echo/v4"
)

// AlertQueue is the operator view of the webhook delivery queue.
type AlertQueue interface {
	Depth(ctx context.Context) (queue.Depth, error)
	DeadLetters(ctx context.Context, limit int64) ([]queue.Message, error)
	Redrive(ctx context.Context, limit int) (int, error)
}

// WithAlertQueue enables the /api/alerts endpoints.
func WithAlertQueue(q AlertQueue) HandlerOption {
	return func(h *ContagionEchoHandler) { h.alerts = q }
}

func (h *ContagionEchoHandler) registerAlertRoutes(g *echo.Group) {
	a := g.Group("/alerts")
	a.GET("/queue", h.AlertQueueDepth)
	a.GET("/dead-letters", h.AlertDeadLetters)
	a.POST("/redrive", h.AlertRedrive)
}

func (h *ContagionEchoHandler) alertsDisabled(c echo.Context) error {
	return xhttp.AppErrorResponse(c, xhttp.NotFoundError("webhook alerts disabled"))
}

func (h *ContagionEchoHandler) AlertQueueDepth(c echo.Context) error {
	if h.alerts == nil {
		return h.alertsDisabled(c)
	}
	start := time.Now()
	d, err := h.alerts.Depth(c.Request().Context())
	h.metrics.Observe("alerts_queue", start, err != nil)
	if err != nil {
		h.logger.Error("alert queue depth", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("alert queue unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *ContagionEchoHandler) AlertDeadLetters(c echo.Context) error {
	if h.alerts == nil {
		return h.alertsDisabled(c)
	}
	req := &models.DeadLettersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	msgs, err := h.alerts.DeadLetters(c.Request().Context(), int64(req.Limit))
	if err != nil {
		h.logger.Error("alert dead letters", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("alert queue unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, msgs, int64(len(msgs)))
}

func (h *ContagionEchoHandler) AlertRedrive(c echo.Context) error {
	if h.alerts == nil {
		return h.alertsDisabled(c)
	}
	req := &models.RedriveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	moved, err := h.alerts.Redrive(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("alert redrive", xlogger.Int("moved", moved), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("alert queue unavailable").WithError(err))
	}
	h.logger.Info("alerts redriven", xlogger.Int("moved", moved), xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, map[string]int{"redriven": moved})
}
