// Package logging assembles the slog loggers used across tunesmith.
//
// It owns the console and JSON handlers, a rotating JSON log file, and
// context-aware helpers that tag lines with the work item key, pipeline state
// and run identifier. NewNop gives tests and optional wiring a logger that
// never fails.
package logging
