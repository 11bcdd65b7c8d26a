// Package logging assembles structured slog loggers and formatting helpers used
// across anibridge-plex.
//
// It owns the console and JSON handlers, resolves the "auto" format against the
// terminal, and exposes context-aware helpers so request handlers and the sync
// engine tag log lines with trace ids, section titles, and rating keys. The
// package also provides a no-op logger for tests and wiring code that cannot fail.
package logging
