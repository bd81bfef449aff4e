// Package store provides the key-value backends used to persist circuit
// snapshots across restarts: Redis for shared deployments and an in-memory
// map for tests and single-process runs.
package store
