// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package document defines the durable records that back prompts:
// entry requests, tickets, suggestions, reports, and resources.
//
// Every document is identified by an [ID]: the collection named after
// its [Kind] and a partial identifier unique within that collection,
// written "collection:partialId". The partial identifier is what a
// prompt message carries (see lib/prompt) to find its document again
// after a restart, so it is restricted to [a-z0-9-]: it must survive
// being embedded in message metadata and in action identifiers whose
// separators are '.' and '|'.
//
// Entry requests derive their partial identifier from (guild, author)
// with BLAKE3, so there is at most one request per user per guild and
// it can be fetched without a query. Every other kind uses a random
// UUID.
//
// Documents are plain values. Copying one and changing fields never
// affects the original, except for the vote slices of [EntryRequest];
// use [EntryRequest.Clone] before mutating those.
package document
