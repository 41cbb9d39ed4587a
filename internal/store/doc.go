// Package store keeps the history of scenario runs in SQLite.
//
// Each row holds the scenario manifest with its program inlined, so a stored
// run can be replayed without the original files, and the fingerprints of the
// program, configuration and outputs, so a replay can be checked for
// determinism.
//
// Rows are ordered by seq, assigned on insert. Listing is newest first.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
