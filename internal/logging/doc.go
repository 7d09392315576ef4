// Package logging assembles structured slog loggers and formatting helpers used
// across the converter.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with batch item indexes, stages, and correlation IDs. The console
// handler serializes writes, which keeps lines from concurrent sequence
// workers intact. A no-op logger is provided for embedding and tests.
package logging
