// Package tracelog stores engine runs and their sweep traces in SQLite.
//
// The log is append-only:
//   - runs: one row per engine run, keyed by its UUIDv7 run ID
//   - sweeps: one row per sweep, keyed by (run_id, idx)
//   - outputs: one row per emitted value, keyed by (run_id, sweep_idx, pos)
//
// Ordering never uses wall-clock time. Runs are listed in insertion order
// (rowid), sweeps by index and outputs by visit position. Run lists are
// canonical JSON so a stored sweep hashes exactly as it did when recorded.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// *Store implements engine.Recorder.
package tracelog
