// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package moderation implements the prompt kinds that moderators work
// through as a queue: tickets, suggestions, reports, and resources.
//
// All four share one lifecycle. A member submits a document, its
// prompt appears in the kind's channel, and moderators press Resolve,
// Unresolve, or Close on it. Resolving keeps the prompt and shows the
// new status; closing finalises the document and removes the prompt.
// Tickets also own a private room, created on submission with the
// author invited and closed when the ticket is.
package moderation
