// Package tracker maintains per-locator access patterns used to drive tiering
// decisions.
//
// A Tracker is a sharded, mutex-guarded table keyed by locator ID. Each entry
// records a monotonically increasing access count, the last-access timestamp,
// and a capped ring of the most recent operation kinds. Sharding by locator
// hash keeps unrelated locators from contending on a single lock.
//
// Entries are created lazily by Track, removed explicitly by Forget when a
// locator is deleted, and reaped in bulk by SweepExpired once they have been
// idle past a threshold.
package tracker
