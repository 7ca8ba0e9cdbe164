package main

import (
	"log/slog"

	"github.com/binpack/binpack/cmd/globals"
	"github.com/binpack/binpack/metrics"
)

// loadMetrics builds the process-wide Metrics instruments. A failure
// here (e.g. a duplicate meter registration) degrades to a no-op
// Metrics{} rather than aborting the command.
func loadMetrics(log *slog.Logger) (metrics.Metrics, error) {
	m, err := metrics.New()
	if err != nil {
		log.Warn("metrics disabled", "err", err)
		return metrics.Metrics{}, err
	}
	return m, nil
}

type ServeMetricsCmd struct {
	ListenAddr string `help:"Address to serve /metrics on" default:":9090" env:"BINPACK_METRICS_LISTEN_ADDR"`
}

func (cmd *ServeMetricsCmd) Run(g *globals.Globals) error {
	log := newLogger(g.Verbose)
	if _, err := metrics.New(); err != nil {
		return err
	}
	log.Info("serving metrics", "addr", cmd.ListenAddr)
	return metrics.ListenAndServe(cmd.ListenAddr)
}
