// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable identifiers for the Matrix
// objects gatekeeper works with: rooms (guild spaces, prompt channels,
// gated role rooms), users, and events (prompt messages).
//
// Identifiers are parsed once at the boundary (sync responses,
// configuration, decoded documents) and passed around as value types
// afterwards. The zero value of each type means "unset"; use IsZero.
//
// All types implement encoding.TextMarshaler and TextUnmarshaler, so
// they serialize as plain strings in both JSON (Matrix API, config
// files) and CBOR (documents at rest, see lib/codec).
package ref
