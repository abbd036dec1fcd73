// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen.com/go/sqlite connection pools
// with the pragmas gatekeeper's SQLite document backend expects.
//
// Connections are handed out with [Pool.Take] and returned with
// [Pool.Put]. A connection belongs to one goroutine between those two
// calls.
//
// Pragmas applied to every connection:
//
//   - journal_mode=WAL: readers never block the writer.
//   - synchronous=NORMAL: committed documents survive a process crash.
//     A power cut can lose the last transactions; the next resync
//     reconciles prompts against whatever the store then holds.
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - foreign_keys=ON: the schema has none today; enabled so future
//     tables get enforcement by default.
//   - temp_store=MEMORY.
//
// The package does not wrap queries. Callers write SQL against the
// returned *sqlite.Conn with sqlitex.Execute and manage transactions
// with sqlitex.ImmediateTransaction.
package sqlitepool
