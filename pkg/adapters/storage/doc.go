// Package storage provides final-output and assignment storage implementations.
//
// Implementations:
//   - redis: final outputs in Redis with JSON serialization and TTL
//   - memory: in-memory final outputs for single-process runs and tests
//   - badger: embedded assignment persistence on the root
package storage
