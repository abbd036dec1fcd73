// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists documents for the prompt lifecycle.
//
// The package has two layers. A [Backend] stores untyped [Record]
// values: a document ID, the guild it belongs to, whether it is open,
// and its CBOR payload. [Collection] is the typed facade the rest of
// gatekeeper uses; it encodes documents with lib/codec and exposes the
// four operations the prompt lifecycle consumes:
//
//   - Get: fetch one document by ID.
//   - Create: insert a new document; fails with [ErrExists] if the ID
//     is taken.
//   - Update: atomic read-modify-write. The mutator sees the stored
//     document and returns the replacement, or [ErrNoChange] to leave
//     it untouched.
//   - QueryOpen: every open document of the collection in one guild.
//
// Three backends exist: [MemoryBackend] for tests and throwaway runs,
// [SQLiteBackend] (lib/sqlitepool), and [RedisBackend]
// (github.com/redis/go-redis/v9, WATCH/MULTI transactions).
//
// The store is the only source of truth. Everything the prompt
// lifecycle keeps in memory can be rebuilt from it.
package store
