// cmd/staticql/metrics_wiring.go
package main

import (
	"os"

	staticql "github.com/staticql/staticql"
	"github.com/staticql/staticql/internal/metrics"
)

// attachMetrics wires a JSONL metrics logger into engine when METRICS_LOG
// names a log file path. The returned close func is always safe to defer,
// a no-op when no logger was attached.
func attachMetrics(engine *staticql.Engine) (func() error, error) {
	path := os.Getenv("METRICS_LOG")
	if path == "" {
		return func() error { return nil }, nil
	}
	logger, err := metrics.NewLogger(path)
	if err != nil {
		return nil, err
	}
	engine.WithMetrics(logger)
	return logger.Close, nil
}
