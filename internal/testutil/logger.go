package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output, for
// quiet tests. Equivalent to log.NewNop; kept here so testutil does not
// depend on internal/log.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
