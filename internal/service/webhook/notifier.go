package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ContagionRadar/internal/domain/models"
	dservice "ContagionRadar/internal/domain/service"
	xhttp "ContagionRadar/pkg/http"
	applogger "ContagionRadar/pkg/logger"

	"github.com/sony/gobreaker"
)

// Alert is the JSON body posted to the webhook.
type Alert struct {
	Kind     string                 `json:"kind"`
	Origin   string                 `json:"origin"`
	Severity models.Severity        `json:"severity"`
	Reach    int                    `json:"reach"`
	SentAt   time.Time              `json:"sent_at"`
	Signal   models.ContagionSignal `json:"signal"`
}

// Notifier posts contagion alerts to a webhook behind a circuit breaker.
type Notifier struct {
	url    string
	client *xhttp.Client
	cb     *gobreaker.CircuitBreaker
	log    *applogger.Logger
	now    func() time.Time
}

var _ dservice.AlertNotifier = (*Notifier)(nil)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("webhook circuit open")

// NewNotifier creates a notifier posting to url. The breaker trips after three
// consecutive failures or a failure ratio above 5% once 20 requests were seen.
// 4xx responses are returned to the caller but do not count as failures.
func NewNotifier(url string, timeout time.Duration, lgr *applogger.Logger) *Notifier {
	if lgr == nil {
		lgr = applogger.Nop()
	}
	n := &Notifier{
		url:    url,
		client: xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithUserAgent("contagion-radar")),
		log:    lgr.With(applogger.String("component", "webhook")),
		now:    time.Now,
	}
	st := gobreaker.Settings{
		Name:     "webhook",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		// a rejected alert says nothing about the endpoint's health
		IsSuccessful: func(err error) bool {
			return err == nil || xhttp.IsClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.log.Warn("circuit state changed",
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	}
	n.cb = gobreaker.NewCircuitBreaker(st)
	return n
}

// Notify posts sig. It fails fast with ErrCircuitOpen while the breaker is open.
func (n *Notifier) Notify(ctx context.Context, sig models.ContagionSignal) error {
	alert := Alert{
		Kind:     "contagion",
		Origin:   sig.Event.OriginAsset,
		Severity: sig.Severity,
		Reach:    sig.Event.Reach,
		SentAt:   n.now().UTC(),
		Signal:   sig,
	}
	_, err := n.cb.Execute(func() (interface{}, error) {
		return nil, n.client.PostJSON(ctx, n.url, alert, nil)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return fmt.Errorf("webhook notify %s: %w", sig.Event.ID, err)
	}
	return nil
}

// State exposes the breaker state for health reporting.
func (n *Notifier) State() string {
	return n.cb.State().String()
}
