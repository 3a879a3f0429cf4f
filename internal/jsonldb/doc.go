// Package jsonldb provides a generic, concurrent-safe, JSON-backed collection
// store.
//
// # Overview
//
// The package centers around [Table], a generic append-mostly collection
// persisted as a single JSON array file. A Table holds no in-memory cache:
// every [Table.Load] re-reads the file, so several processes (a server and a
// CLI, for instance) can share the same data directory.
//
// # Concurrency: Pessimistic Locking
//
// [Table.Modify] holds an in-process mutex and a cross-process advisory file
// lock for the entire read-modify-write operation, then replaces the file with
// write-to-temp, fsync and rename. Concurrent appends therefore never lose
// updates and a crash never leaves a partially written collection behind.
// Readers take no lock: they observe either the old or the new file.
//
// # Corruption
//
// A file that exists but does not parse is reported as [ErrCorrupt]. It is
// never treated as an empty collection and never overwritten.
package jsonldb
