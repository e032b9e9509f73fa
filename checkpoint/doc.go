// Package checkpoint persists session snapshots. A Checkpoint is a keyed
// blob: the latest state record, the next stage pointer and a monotonic
// sequence number under a session id. Stores also hand out a per-session
// lease so two processes cannot drive the same session concurrently.
//
// Backends: in-memory (tests, dev), file (single-node, atomic writes),
// sqlite (gorm over a pure-Go driver), redis and mongo. Construct one via
// NewStore with a StoreConfig.
package checkpoint
