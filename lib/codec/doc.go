// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds gatekeeper's CBOR encoding configuration.
//
// Documents are stored at rest as CBOR by every store backend (SQLite
// blobs, Redis string values). JSON remains the format of the Matrix
// API and of configuration files; nothing outside the store touches
// CBOR.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same document always produces the same bytes. Backends rely on that
// to skip writes when a mutator returns an unchanged document.
//
// Document types use `json` struct tags; fxamacker/cbor falls back to
// them when no `cbor` tag is present, which keeps field names
// identical across the two formats.
package codec
