package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"ContagionRadar/internal/domain/models"
	drepo "ContagionRadar/internal/domain/repository"
	mid "ContagionRadar/internal/middleware"
	"ContagionRadar/internal/services/contagion"
	applogger "ContagionRadar/pkg/logger"
)

// ReplayUseCase rebuilds engine state from archived observations.
type ReplayUseCase struct {
	archive  drepo.ObservationArchive
	svc      *ContagionService
	lookback time.Duration
	limit    int
	l        *applogger.Logger
	now      func() time.Time
}

func NewReplayUseCase(archive drepo.ObservationArchive, svc *ContagionService, lookback time.Duration, limit int, l *applogger.Logger) *ReplayUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &ReplayUseCase{
		archive:  archive,
		svc:      svc,
		lookback: lookback,
		limit:    limit,
		l:        l.With(applogger.String("component", "replay")),
		now:      time.Now,
	}
}

// Run loads the lookback window from the archive and replays it without
// notifying subscribers. It returns the number of accepted observations.
func (r *ReplayUseCase) Run(ctx context.Context) (int, error) {
	start := r.now()
	since := start.Add(-r.lookback)
	observations, err := r.archive.LoadSince(ctx, since, r.limit)
	if err != nil {
		return 0, fmt.Errorf("replay: %w", err)
	}
	n := r.svc.Replay(observations)
	r.l.Info("engine state rebuilt",
		applogger.Int("loaded", len(observations)),
		applogger.Int("accepted", n),
		applogger.String("since", since.UTC().Format(time.RFC3339)),
		applogger.Duration("took", time.Since(start)),
	)
	return n, nil
}

// ReplayReport summarizes a stream replay.
type ReplayReport struct {
	Lines     int `json:"lines"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Signals   int `json:"signals"`
	Rotations int `json:"rotations"`
}

// ReplayOutput is one JSON line written by ReplayStream.
type ReplayOutput struct {
	Type     string                  `json:"type"`
	Signal   *models.ContagionSignal `json:"signal,omitempty"`
	Rotation *models.SectorRotation  `json:"rotation,omitempty"`
}

// ReplayStream records JSON-lines observations from r into svc and writes every
// emitted signal and rotation to w as a JSON line. Malformed lines are counted
// as rejected and skipped.
func ReplayStream(ctx context.Context, svc *ContagionService, r io.Reader, w io.Writer, l *applogger.Logger) (ReplayReport, error) {
	if l == nil {
		l = applogger.Nop()
	}
	var (
		report ReplayReport
		mu     sync.Mutex
		werr   error
	)
	enc := json.NewEncoder(w)
	write := func(out ReplayOutput) {
		mu.Lock()
		defer mu.Unlock()
		if werr == nil {
			werr = enc.Encode(out)
		}
	}
	unsubscribe := svc.Subscribe(contagion.SubscriberFuncs{
		Contagion: func(sig models.ContagionSignal) {
			report.Signals++
			write(ReplayOutput{Type: "contagion", Signal: &sig})
		},
		Rotation: func(rot models.SectorRotation) {
			report.Rotations++
			write(ReplayOutput{Type: "sector_rotation", Rotation: &rot})
		},
	})
	defer unsubscribe()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		report.Lines++

		var req models.ObservationRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			report.Rejected++
			l.Debug("skipping malformed line", applogger.Int("line", report.Lines), applogger.Error(err))
			continue
		}
		obs := mid.Normalize(ptr(req.ToObservation(time.Time{})))
		if err := mid.ValidateObservation(obs); err != nil {
			report.Rejected++
			continue
		}
		if obs.Timestamp.IsZero() {
			report.Rejected++
			l.Debug("skipping line without timestamp", applogger.Int("line", report.Lines))
			continue
		}
		if err := svc.Record(*obs); err != nil {
			report.Rejected++
			continue
		}
		report.Accepted++
		if werr != nil {
			return report, fmt.Errorf("write output: %w", werr)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return report, fmt.Errorf("read input: %w", err)
	}
	return report, werr
}

func ptr[T any](v T) *T { return &v }
