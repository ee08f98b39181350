// Package logging assembles structured slog loggers and formatting helpers used
// across the cfb8d daemon and CLI.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context helpers so connection handlers can tag every line with
// the connection id and peer credentials. A no-op logger is provided for
// tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// records with the same shape as the rest of the daemon.
package logging
