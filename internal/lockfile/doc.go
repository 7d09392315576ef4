// Package lockfile guards destination paths against concurrent writers.
//
// A destination is locked by an empty sentinel file named "<destination>.lock"
// next to it. Creation uses an exclusive create so exactly one thread or
// process wins; the sentinel's modification time is its timestamp. Sentinels
// older than the stale window (five minutes by default) are reclaimed by the
// next acquirer unless their owner still holds an advisory flock on them,
// which is how a live long-running conversion is told apart from a crashed
// one.
package lockfile
