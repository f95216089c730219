package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"ContagionRadar/internal/services/contagion"
	"ContagionRadar/internal/usecase"
	"ContagionRadar/pkg/config"
	applogger "ContagionRadar/pkg/logger"
	"ContagionRadar/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var replayFile string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay JSONL observations through a fresh engine",
	Long: `Reads one observation per line and writes every contagion signal and
sector rotation as a JSON line to stdout. Engine tunables come from the
config file when it exists; defaults are used otherwise.

  contagion replay --file observations.jsonl
  cat observations.jsonl | contagion replay`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "-", "observations file, - for stdin")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	l, err := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}

	var engineCfg contagion.Config
	cfg, err := config.Load(configPath)
	switch {
	case err == nil:
		engineCfg = cfg.Contagion
	case errors.Is(err, fs.ErrNotExist):
		l.Info("no config file, using engine defaults", applogger.String("config", configPath))
	default:
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if replayFile != "-" {
		f, err := os.Open(replayFile)
		if err != nil {
			return fmt.Errorf("open observations: %w", err)
		}
		defer f.Close()
		in = f
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	svc := usecase.NewContagionService(
		contagion.New(engineCfg, contagion.WithLogger(l)),
		metrics.NewWithRegistry(prometheus.NewRegistry()),
	)
	report, err := usecase.ReplayStream(cmd.Context(), svc, in, out, l)
	if err != nil {
		return err
	}

	l.Info("replay finished",
		applogger.Int("lines", report.Lines),
		applogger.Int("accepted", report.Accepted),
		applogger.Int("rejected", report.Rejected),
		applogger.Int("signals", report.Signals),
		applogger.Int("rotations", report.Rotations),
	)
	return nil
}
