// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records moderation outcomes: accepted and rejected
// entry requests, closed tickets, and similar events that moderators
// want a history of.
//
// Every entry is logged through slog. When the guild has a journal
// room configured, the entry is also posted there as a notice. Posting
// is best effort: a failed notice is logged and the entry is not
// retried.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Entry is one journal record.
type Entry struct {
	Guild    ref.RoomID
	Document document.ID

	// Action is a short machine-readable verb such as "accepted" or
	// "closed".
	Action string

	// Actor is the user whose interaction caused the entry. Subject is
	// the user the outcome applies to. Either may be zero.
	Actor   ref.UserID
	Subject ref.UserID

	// At is when the interaction that caused the entry happened. Zero
	// when unknown.
	At time.Time

	// Summary is the human-readable line posted to the journal room.
	Summary string
}

// Text renders the notice body for e.
func (e Entry) Text() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "[%s] %s %s", e.Document.Collection, e.Document.PartialID, e.Action)
	if !e.Subject.IsZero() {
		fmt.Fprintf(&builder, " for %s", e.Subject)
	}
	if !e.Actor.IsZero() {
		fmt.Fprintf(&builder, " by %s", e.Actor)
	}
	if !e.At.IsZero() {
		fmt.Fprintf(&builder, " at %s", e.At.UTC().Format(time.RFC3339))
	}
	if e.Summary != "" {
		builder.WriteString(": ")
		builder.WriteString(e.Summary)
	}
	return builder.String()
}

// Poster posts a plain notice to a room. messaging.Platform satisfies
// it.
type Poster interface {
	PostNotice(ctx context.Context, channel ref.RoomID, text string) error
}

// RoomFunc returns the journal room configured for guild.
type RoomFunc func(guild ref.RoomID) (ref.RoomID, bool)

// Journal records entries. A nil *Journal discards everything, so
// callers without a journal need no checks.
type Journal struct {
	poster Poster
	rooms  RoomFunc
	logger *slog.Logger
}

// New creates a Journal. rooms may be nil, in which case entries are
// only logged.
func New(poster Poster, rooms RoomFunc, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Journal{poster: poster, rooms: rooms, logger: logger}
}

// Record logs entry and posts it to the guild's journal room.
func (j *Journal) Record(ctx context.Context, entry Entry) {
	if j == nil {
		return
	}
	j.logger.Info("journal entry",
		"guild_id", entry.Guild,
		"document_id", entry.Document,
		"action", entry.Action,
		"actor", entry.Actor,
		"subject", entry.Subject,
		"at", entry.At,
		"summary", entry.Summary,
	)

	if j.rooms == nil || j.poster == nil {
		return
	}
	room, ok := j.rooms(entry.Guild)
	if !ok {
		return
	}
	if err := j.poster.PostNotice(ctx, room, entry.Text()); err != nil {
		j.logger.Warn("posting journal entry failed",
			"guild_id", entry.Guild,
			"room_id", room,
			"document_id", entry.Document,
			"error", err,
		)
	}
}
