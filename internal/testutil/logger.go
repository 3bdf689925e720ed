package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that drops all output, for tests that
// construct components directly. Code already importing internal/log should
// prefer log.NewNop(), which returns the same type.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
