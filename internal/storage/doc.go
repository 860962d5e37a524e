package storage

// Package storage provides the durable key-value blob store the engine
// persists its snapshot into.
//
// Drivers:
//   - memory: process-local map (tests, ephemeral runs)
//   - file:   one file per key, replaced atomically on every write
//   - sqlite: single table keyed by blob key
