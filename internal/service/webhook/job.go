package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"ContagionRadar/internal/domain/models"
	dservice "ContagionRadar/internal/domain/service"
	"ContagionRadar/pkg/queue"
)

// AlertType is the queue message type for webhook alerts.
const AlertType = "contagion.alert"

// AlertJob delivers queued alerts through a notifier; failures are retried by the queue.
type AlertJob struct {
	notifier dservice.AlertNotifier
}

var _ queue.Job = (*AlertJob)(nil)

func NewAlertJob(n dservice.AlertNotifier) *AlertJob {
	return &AlertJob{notifier: n}
}

func (j *AlertJob) Name() string { return "webhook_alert" }
func (j *AlertJob) Type() string { return AlertType }

func (j *AlertJob) Handle(ctx context.Context, payload json.RawMessage) error {
	sig, err := queue.Decode[models.ContagionSignal](payload)
	if err != nil {
		return fmt.Errorf("alert payload: %w", err)
	}
	return j.notifier.Notify(ctx, sig)
}
