// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt keeps chat messages ("prompts") consistent with the
// open documents they represent.
//
// A [Manager] is parameterised by an [Adapter] for one document kind.
// It guarantees at most one live, untampered prompt per open document
// per guild, and routes actions pressed on a prompt to the adapter.
//
// The binding between a document and its prompt message is an
// in-memory cache owned by the Manager. It is rebuilt from scratch by
// [Manager.Resync], which cross-references the open documents in the
// store with the messages in the kind's channel: each prompt carries a
// metadata token (see [EncodeToken]) naming its document's partial
// identifier. Resync adopts matching prompts, posts prompts for
// documents that lack one, and deletes everything else in the channel.
// Running it twice in a row changes nothing the second time.
//
// Tampering is repaired through the same path. A deleted prompt whose
// document is still open is posted again; an edit that strips the
// rendered content is turned into a deletion first.
//
// Actions carry a custom identifier of the form
// "kind|partialId|extra..." (see [EncodeCustomID]). The adapter's
// [Adapter.Decide] runs inside the store's atomic update and returns a
// [Verdict]: persist the changed document, finalize it, or ignore the
// action. A finalized document is untracked before any platform call
// is made, so a second action racing the first finds nothing to act on.
//
// Platform failures are logged and never roll back a committed
// document. The next resync or tamper event repairs the drift.
package prompt
