// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Event types the service reads or writes. The org.gatekeeper.*
// types are custom events sent by the companion client widgets.
const (
	EventTypeMessage     = "m.room.message"
	EventTypeRedaction   = "m.room.redaction"
	EventTypeMember      = "m.room.member"
	EventTypeSpaceChild  = "m.space.child"
	EventTypeSpaceParent = "m.space.parent"
	EventTypeAction      = "org.gatekeeper.action"
	EventTypeSubmission  = "org.gatekeeper.submission"
)

// Message relation types.
const (
	RelTypeReplace = "m.replace"
	RelTypeThread  = "m.thread"
)

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name            string         `json:"name,omitempty"`
	Topic           string         `json:"topic,omitempty"`
	Visibility      string         `json:"visibility,omitempty"` // "public" or "private"
	Preset          string         `json:"preset,omitempty"`     // "private_chat", "public_chat", "trusted_private_chat"
	Invite          []string       `json:"invite,omitempty"`
	CreationContent map[string]any `json:"creation_content,omitempty"`
	InitialState    []StateEvent   `json:"initial_state,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// StateEvent represents a Matrix state event for room creation.
type StateEvent struct {
	Type     string `json:"type"`
	StateKey string `json:"state_key"`
	Content  any    `json:"content"`
}

// MessageContent is the content body of an m.room.message event.
//
// Prompt messages carry two extra keys next to the ordinary body: the
// prompt token (the metadata carrier that survives restarts) and the
// control set (buttons rendered by the companion widget). An edit is
// a message whose RelatesTo is an m.replace relation and whose
// NewContent holds the replacement.
type MessageContent struct {
	MsgType       string          `json:"msgtype"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	Target        string          `json:"target,omitempty"`
	Mentions      *Mentions       `json:"m.mentions,omitempty"`
	PromptToken   string          `json:"org.gatekeeper.prompt,omitempty"`
	Controls      []Control       `json:"org.gatekeeper.controls,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
}

// Intact reports whether the content still carries a rendered prompt:
// a non-empty body and a metadata token.
func (m MessageContent) Intact() bool {
	return m.Body != "" && m.PromptToken != ""
}

// IsEdit reports whether this message replaces another.
func (m MessageContent) IsEdit() bool {
	return m.RelatesTo != nil && m.RelatesTo.RelType == RelTypeReplace
}

// Mentions identifies users referenced in a message, in the Matrix
// m.mentions format.
type Mentions struct {
	UserIDs []string `json:"user_ids,omitempty"`
}

// RelatesTo expresses relationships between events.
type RelatesTo struct {
	RelType string      `json:"rel_type"`
	EventID ref.EventID `json:"event_id"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// NewNotice creates an m.notice message, the msgtype bots use for
// automated output.
func NewNotice(body string) MessageContent {
	return MessageContent{
		MsgType: "m.notice",
		Body:    body,
	}
}

// NewTargetedNotice creates a notice addressed to one user. Clients
// that honour Target show it only to that user; others see a mention.
func NewTargetedNotice(body string, target ref.UserID) MessageContent {
	return MessageContent{
		MsgType:  "m.notice",
		Body:     body,
		Target:   target.String(),
		Mentions: &Mentions{UserIDs: []string{target.String()}},
	}
}

// NewReplacement builds an m.replace edit of original carrying
// replacement as the new content.
func NewReplacement(original ref.EventID, replacement MessageContent) MessageContent {
	return MessageContent{
		MsgType:     replacement.MsgType,
		Body:        "* " + replacement.Body,
		PromptToken: replacement.PromptToken,
		NewContent:  &replacement,
		RelatesTo: &RelatesTo{
			RelType: RelTypeReplace,
			EventID: original,
		},
	}
}

// ActionContent is the content of an org.gatekeeper.action event,
// sent when a member presses a control on a prompt.
type ActionContent struct {
	CustomID string      `json:"custom_id"`
	EventID  ref.EventID `json:"event_id"`
}

// SubmissionContent is the content of an org.gatekeeper.submission
// event: a filled-in form for one document kind.
type SubmissionContent struct {
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// RedactionContent is the content of an m.room.redaction event in
// room version 11 and later.
type RedactionContent struct {
	Redacts ref.EventID `json:"redacts,omitzero"`
	Reason  string      `json:"reason,omitempty"`
}

// RedactRequest is the body of PUT /rooms/{roomId}/redact/{eventId}/{txnId}.
type RedactRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BanRequest is the body of POST /rooms/{roomId}/ban.
type BanRequest struct {
	UserID ref.UserID `json:"user_id"`
	Reason string     `json:"reason,omitempty"`
}

// Event represents a Matrix event from the server. Content is kept raw
// and decoded by type at the point of use.
type Event struct {
	EventID        ref.EventID     `json:"event_id"`
	Type           string          `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	RoomID         ref.RoomID      `json:"room_id,omitzero"`
	StateKey       *string         `json:"state_key,omitempty"`
	Redacts        ref.EventID     `json:"redacts,omitzero"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age             int64           `json:"age,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	RedactedBecause json.RawMessage `json:"redacted_because,omitempty"`
}

// Redacted reports whether the server has already redacted the event.
func (e Event) Redacted() bool {
	return e.Unsigned != nil && len(e.Unsigned.RedactedBecause) > 0
}

// RedactedEvent returns the event a redaction targets. Room versions
// before 11 put it at the top level; later versions move it into
// content.
func (e Event) RedactedEvent() ref.EventID {
	if !e.Redacts.IsZero() {
		return e.Redacts
	}
	var content RedactionContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return ref.EventID{}
	}
	return content.Redacts
}

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
}

// RoomMessagesResponse is returned by RoomMessages.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// InviteRequest holds the user ID to invite to a room.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}

// KickRequest is the request body for kicking a user from a room.
type KickRequest struct {
	UserID ref.UserID `json:"user_id"`
	Reason string     `json:"reason,omitempty"`
}

// SendEventResponse is returned by SendMessage, SendEvent, and Redact.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// RoomMember represents a member of a Matrix room.
type RoomMember struct {
	UserID      ref.UserID `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Membership  string     `json:"membership"`
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey string            `json:"state_key"`
	Sender   ref.UserID        `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of a m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}
