// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "github.com/bureau-foundation/gatekeeper/lib/ref"

// PlatformEvent is one inbound platform notification, already decoded
// from the raw Matrix timeline. The concrete types are GuildAvailable,
// GuildUnavailable, MessageDeleted, MessageEdited, ActionInvoked, and
// SubmissionReceived.
type PlatformEvent interface {
	platformEvent()
}

// GuildAvailable reports that the service account is joined to Room.
// Emitted once per joined room on startup and again on every rejoin.
type GuildAvailable struct {
	Room ref.RoomID
}

// GuildUnavailable reports that the service account left or was
// removed from Room.
type GuildUnavailable struct {
	Room ref.RoomID
}

// MessageDeleted reports that Message in Channel was redacted.
type MessageDeleted struct {
	Channel ref.RoomID
	Message ref.EventID
}

// MessageEdited reports an m.replace edit of Message. Intact is false
// when the replacement content dropped the rendered prompt.
type MessageEdited struct {
	Channel ref.RoomID
	Message ref.EventID
	Editor  ref.UserID
	Intact  bool
}

// ActionInvoked reports that User pressed the control identified by
// CustomID on Message.
type ActionInvoked struct {
	Channel  ref.RoomID
	Message  ref.EventID
	User     ref.UserID
	CustomID string
}

// SubmissionReceived reports a completed submission form.
type SubmissionReceived struct {
	Channel ref.RoomID
	User    ref.UserID
	Kind    string
	Fields  map[string]string
}

func (GuildAvailable) platformEvent()     {}
func (GuildUnavailable) platformEvent()   {}
func (MessageDeleted) platformEvent()     {}
func (MessageEdited) platformEvent()      {}
func (ActionInvoked) platformEvent()      {}
func (SubmissionReceived) platformEvent() {}
