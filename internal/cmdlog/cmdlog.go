// Package cmdlog wraps CLI commands with run and error accounting.
package cmdlog

import (
	"errors"
	"time"

	"twarchive/internal/config"
	"twarchive/internal/logging"
	"twarchive/internal/metrics"
)

// Run executes f as command cmd, counting it and logging the outcome.
// Configuration errors are logged as such so they stand out from run
// failures.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	fields := map[string]any{"command": cmd, "seconds": time.Since(start).Seconds()}
	if err == nil {
		logging.Info(cmd+"_ok", fields)
		return nil
	}
	metrics.IncCommandError(cmd)
	fields["error"] = err.Error()
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		fields["field"] = ce.Field
		logging.Error(cmd+"_config_error", fields)
		return err
	}
	logging.Error(cmd+"_error", fields)
	return err
}
