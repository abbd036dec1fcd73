// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// Interaction is one action pressed on a tracked prompt.
type Interaction struct {
	Guild    ref.RoomID
	Channel  ref.RoomID
	Message  ref.EventID
	User     ref.UserID
	Document document.ID
	Extra    []string
	At       time.Time
}

// Adapter supplies the kind-specific parts of a prompt.
type Adapter[D document.Document] interface {
	// Kind returns the document kind the adapter handles.
	Kind() document.Kind

	// Render returns the prompt's visible content and controls. The
	// Manager fills in the metadata token.
	Render(doc D) messaging.PromptContent

	// Decide computes the transition for an interaction on an open
	// document. It runs inside the store's atomic update, possibly
	// more than once, and must not have side effects.
	Decide(in Interaction, doc D) Verdict[D]

	// Apply performs the side effects of a committed Persist or
	// Finalize verdict: role grants, bans, journal entries, replies.
	Apply(ctx context.Context, in Interaction, outcome Outcome[D])

	// OnFinalize runs the kind's own teardown for a document that is
	// no longer open, after it has been untracked and before its prompt
	// is deleted.
	OnFinalize(ctx context.Context, doc D)
}

// Store is the document persistence the Manager needs.
// *store.Collection satisfies it.
type Store[D document.Document] interface {
	Get(ctx context.Context, id document.ID) (D, error)
	Update(ctx context.Context, id document.ID, mutate func(D) (D, error)) (D, error)
	QueryOpen(ctx context.Context, guild ref.RoomID) ([]D, error)
}

// ChannelFunc returns the channel configured for a kind in guild.
type ChannelFunc func(guild ref.RoomID) (ref.RoomID, bool)
