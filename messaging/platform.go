// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Platform is the chat-platform surface the prompt lifecycle and the
// document adapters need. Channels are rooms; messages are events.
// [MatrixPlatform] is the production implementation; messagingtest
// provides an in-memory fake.
type Platform interface {
	// SendPrompt posts a rendered prompt to channel and returns the
	// new message's ID.
	SendPrompt(ctx context.Context, channel ref.RoomID, content PromptContent) (ref.EventID, error)

	// EditPrompt replaces the rendered content of an existing prompt
	// message.
	EditPrompt(ctx context.Context, channel ref.RoomID, message ref.EventID, content PromptContent) error

	// DeleteMessage removes a message. Deleting an already-removed
	// message returns an error satisfying IsGone.
	DeleteMessage(ctx context.Context, channel ref.RoomID, message ref.EventID, reason string) error

	// ChannelHistory returns every live message in channel, newest
	// first, with edits folded into the message they replace.
	ChannelHistory(ctx context.Context, channel ref.RoomID) ([]Message, error)

	// GrantRole gives user the role represented by role.
	GrantRole(ctx context.Context, guild, role ref.RoomID, user ref.UserID) error

	// BanMember removes user from guild and prevents rejoining.
	BanMember(ctx context.Context, guild ref.RoomID, user ref.UserID, reason string) error

	// Respond sends a notice addressed only to user in channel. It
	// is the ephemeral reply to an interaction.
	Respond(ctx context.Context, channel ref.RoomID, user ref.UserID, text string) error

	// PostNotice posts a plain notice visible to the whole channel.
	PostNotice(ctx context.Context, channel ref.RoomID, text string) error

	// CreateChannel creates a private channel under guild with the
	// given members and returns its ID.
	CreateChannel(ctx context.Context, guild ref.RoomID, name string, members []ref.UserID) (ref.RoomID, error)

	// CloseChannel removes all members from channel and leaves it.
	CloseChannel(ctx context.Context, channel ref.RoomID, reason string) error
}

// PromptContent is a rendered prompt: what a Platform draws in the
// channel, plus the opaque metadata token the prompt lifecycle uses to
// recognise its own messages after a restart.
type PromptContent struct {
	Title    string
	Body     string
	Fields   []Field
	Token    string
	Controls []Control
}

// Field is one labelled line of a rendered prompt.
type Field struct {
	Name  string
	Value string
}

// Control is an interactive button on a prompt. CustomID is echoed
// back verbatim in the resulting action event.
type Control struct {
	Label    string `json:"label"`
	CustomID string `json:"custom_id"`
	Style    string `json:"style,omitempty"`
}

// Control styles understood by the companion widget.
const (
	StylePrimary   = "primary"
	StyleSecondary = "secondary"
	StyleSuccess   = "success"
	StyleDanger    = "danger"
)

// Message is one live message in a channel as seen by ChannelHistory.
// Token is the prompt metadata carrier, empty for messages that are
// not prompts. Intact is false when the latest edit removed the
// rendered content.
type Message struct {
	ID      ref.EventID
	Channel ref.RoomID
	Sender  ref.UserID
	Token   string
	Intact  bool
}
