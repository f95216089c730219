package webhook

import (
	"context"

	"ContagionRadar/internal/domain/models"
	drepo "ContagionRadar/internal/domain/repository"
	"ContagionRadar/pkg/queue"
)

// AlertSink enqueues contagion signals at or above a minimum severity for
// webhook delivery. Rotations are not alerted.
type AlertSink struct {
	queue       queue.QueueService
	minSeverity models.Severity
}

var _ drepo.SignalSink = (*AlertSink)(nil)

func NewAlertSink(q queue.QueueService, minSeverity models.Severity) *AlertSink {
	return &AlertSink{queue: q, minSeverity: minSeverity}
}

func (s *AlertSink) Name() string { return "webhook" }

func (s *AlertSink) PublishContagion(ctx context.Context, sig models.ContagionSignal) error {
	if models.SeverityRank(sig.Severity) < models.SeverityRank(s.minSeverity) {
		return nil
	}
	return s.queue.PublishMessage(ctx, AlertType, sig)
}

func (s *AlertSink) PublishRotation(context.Context, models.SectorRotation) error { return nil }
