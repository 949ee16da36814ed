// Package store provides SQLite-backed storage for template source.
//
// Every Put appends a revision; nothing is updated in place. A template's
// current source is its revision with the highest seq. The store satisfies
// loader.Resolver, so templates can be rendered straight from the
// database and included from one another.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All queries order by seq, then id, so listings are deterministic.
package store
