// Package services defines shared utilities consumed by every conversion stage.
//
// Key responsibilities:
//   - Context helpers that stamp batch item indexes, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so loaders, transforms,
//     and writers report failures in one shape, and IsFatal/IsSkip so callers
//     can tell a degraded thumbnail from a failed or skipped one.
//
// Use these helpers when wiring new stage logic so error classification stays
// uniform across the single-image and sequence paths.
package services
