// Package store provides SQLite-backed storage for the type recovery
// engine.
//
// The store keeps:
//   - Summaries: the constraint summary of an SCC under its content key
//   - Runs: one record per analysis run with its program hash
//   - Value types: the recovered type of every value of a run
//   - Unhandled calls: the calls a run could not connect to a summary
//
// # Critical Patterns
//
// Content-Addressed Summaries
//   - The key of a summary hashes the functions of its SCC and the keys of
//     its callees (ir.SummaryKey), so a changed callee never hits a stale
//     entry
//   - Writes use ON CONFLICT(key) DO NOTHING; the first summary stored
//     under a key wins
//
// Logical Ordering
//   - Runs are ordered by seq INTEGER, NEVER by timestamps
//   - All multi-row queries end with ORDER BY on seq or a unique text
//     column using COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Summaries and result lists are stored as canonical JSON (ir.MarshalCanonical).
package store
