// Package logging builds the process logger. The plugin rack itself
// never logs; callers log rejected candidates and failed loads with
// path and reason.
package logging

import "go.uber.org/zap"

// New returns the subgate logger. Debug switches to the development
// config with human-readable output and debug-level records.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
