package service

import (
	"context"

	"ContagionRadar/internal/domain/models"
)

// AlertNotifier delivers contagion alerts to an external endpoint.
type AlertNotifier interface {
	Notify(ctx context.Context, sig models.ContagionSignal) error
}
