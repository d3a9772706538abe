// Package journal provides a SQLite-backed log of committed dispatches.
//
// Every dispatch a Recorder sees is appended as one entry:
//   - id: UUIDv7, time-sortable
//   - seq: the store's logical clock value, unique per journal
//   - payload: canonical JSON of the action payload
//   - changed: JSON array of the top-level keys the diff reported
//   - state_hash: SHA-256 of the canonical state after the dispatch
//
// All ordering uses seq, never wall time. Replay re-dispatches the entries
// into a fresh store and checks each state hash, so a journal doubles as a
// determinism check for a definition.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - schema version tracked in PRAGMA user_version
package journal
