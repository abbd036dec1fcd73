// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// syncFilter restricts /sync to the event types the stream translates.
var syncFilter = mustMarshalFilter(map[string]any{
	"room": map[string]any{
		"timeline": map[string]any{
			"types": []string{
				EventTypeMessage,
				EventTypeRedaction,
				EventTypeAction,
				EventTypeSubmission,
			},
			"limit": 100,
		},
		"state": map[string]any{
			"types":             []string{EventTypeMember},
			"lazy_load_members": true,
		},
		"ephemeral":    map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	},
	"presence":     map[string]any{"types": []string{}},
	"account_data": map[string]any{"types": []string{}},
})

func mustMarshalFilter(filter map[string]any) string {
	encoded, err := json.Marshal(filter)
	if err != nil {
		panic(fmt.Sprintf("messaging: sync filter: %v", err))
	}
	return string(encoded)
}

// Syncer is the subset of DirectSession the event stream needs.
type Syncer interface {
	UserID() ref.UserID
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
	JoinRoom(ctx context.Context, roomID ref.RoomID) error
}

// StreamConfig configures an EventStream.
type StreamConfig struct {
	// Timeout is the /sync long-poll timeout. Default: 30s.
	Timeout time.Duration

	// MaxBackoff caps the exponential retry delay after a failed
	// /sync. The delay starts at one second. Default: 30s.
	MaxBackoff time.Duration

	// AcceptInvite decides whether an invite to a room is joined
	// automatically. Nil declines every invite.
	AcceptInvite func(room ref.RoomID) bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// EventStream turns the Matrix /sync long-poll into a sequence of
// PlatformEvents. It is not safe for concurrent use: one goroutine
// calls Initial and then Run.
type EventStream struct {
	syncer Syncer
	config StreamConfig
	self   ref.UserID

	since  string
	joined map[ref.RoomID]bool
}

// NewEventStream creates a stream over syncer.
func NewEventStream(syncer Syncer, config StreamConfig) *EventStream {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &EventStream{
		syncer: syncer,
		config: config,
		self:   syncer.UserID(),
		joined: make(map[ref.RoomID]bool),
	}
}

// Initial performs the first /sync and returns a GuildAvailable for
// every joined room. Timeline events in the initial response predate
// startup and are not translated; callers recover that state from
// channel history instead.
func (s *EventStream) Initial(ctx context.Context) ([]PlatformEvent, error) {
	response, err := s.syncer.Sync(ctx, SyncOptions{Filter: syncFilter})
	if err != nil {
		return nil, fmt.Errorf("initial sync: %w", err)
	}
	s.since = response.NextBatch
	s.acceptInvites(ctx, response.Rooms.Invite)

	events := make([]PlatformEvent, 0, len(response.Rooms.Join))
	for roomID := range response.Rooms.Join {
		s.joined[roomID] = true
		events = append(events, GuildAvailable{Room: roomID})
	}
	return events, nil
}

// Run long-polls /sync from the position Initial left off and calls
// handler for each translated event, in timeline order. Transient
// errors are retried with exponential backoff. Run returns ctx.Err()
// when ctx is cancelled.
func (s *EventStream) Run(ctx context.Context, handler func(context.Context, PlatformEvent)) error {
	logger := s.config.Logger
	backoff := time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		response, err := s.syncer.Sync(ctx, SyncOptions{
			Since:      s.since,
			Timeout:    int(s.config.Timeout / time.Millisecond),
			SetTimeout: true,
			Filter:     syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("sync failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.config.Clock.After(backoff):
			}
			backoff *= 2
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
			continue
		}

		backoff = time.Second
		s.since = response.NextBatch

		for _, event := range s.translate(ctx, response) {
			handler(ctx, event)
		}
	}
}

// translate converts one /sync response into platform events.
func (s *EventStream) translate(ctx context.Context, response *SyncResponse) []PlatformEvent {
	var events []PlatformEvent

	s.acceptInvites(ctx, response.Rooms.Invite)

	for roomID := range response.Rooms.Leave {
		if s.joined[roomID] {
			delete(s.joined, roomID)
			events = append(events, GuildUnavailable{Room: roomID})
		}
	}

	for roomID, room := range response.Rooms.Join {
		if !s.joined[roomID] {
			s.joined[roomID] = true
			events = append(events, GuildAvailable{Room: roomID})
		}
		for _, event := range room.Timeline.Events {
			if translated, ok := s.translateEvent(roomID, event); ok {
				events = append(events, translated)
			}
		}
	}
	return events
}

func (s *EventStream) translateEvent(roomID ref.RoomID, event Event) (PlatformEvent, bool) {
	if event.Sender == s.self || event.Redacted() {
		return nil, false
	}

	switch event.Type {
	case EventTypeRedaction:
		target := event.RedactedEvent()
		if target.IsZero() {
			return nil, false
		}
		return MessageDeleted{Channel: roomID, Message: target}, true

	case EventTypeMessage:
		var content MessageContent
		if err := json.Unmarshal(event.Content, &content); err != nil {
			s.config.Logger.Debug("ignoring undecodable message", "room_id", roomID, "event_id", event.EventID, "error", err)
			return nil, false
		}
		if !content.IsEdit() {
			return nil, false
		}
		intact := content.NewContent != nil && content.NewContent.Intact()
		return MessageEdited{
			Channel: roomID,
			Message: content.RelatesTo.EventID,
			Editor:  event.Sender,
			Intact:  intact,
		}, true

	case EventTypeAction:
		var content ActionContent
		if err := json.Unmarshal(event.Content, &content); err != nil || content.CustomID == "" {
			s.config.Logger.Debug("ignoring malformed action", "room_id", roomID, "event_id", event.EventID)
			return nil, false
		}
		return ActionInvoked{
			Channel:  roomID,
			Message:  content.EventID,
			User:     event.Sender,
			CustomID: content.CustomID,
		}, true

	case EventTypeSubmission:
		var content SubmissionContent
		if err := json.Unmarshal(event.Content, &content); err != nil || content.Kind == "" {
			s.config.Logger.Debug("ignoring malformed submission", "room_id", roomID, "event_id", event.EventID)
			return nil, false
		}
		return SubmissionReceived{
			Channel: roomID,
			User:    event.Sender,
			Kind:    content.Kind,
			Fields:  content.Fields,
		}, true
	}
	return nil, false
}

// acceptInvites joins every invited room AcceptInvite approves. The
// joined room shows up in a later /sync and produces GuildAvailable
// from there.
func (s *EventStream) acceptInvites(ctx context.Context, invites map[ref.RoomID]InvitedRoom) {
	if s.config.AcceptInvite == nil {
		return
	}
	for roomID := range invites {
		if !s.config.AcceptInvite(roomID) {
			continue
		}
		s.config.Logger.Info("accepting room invite", "room_id", roomID)
		if err := s.syncer.JoinRoom(ctx, roomID); err != nil {
			s.config.Logger.Error("failed to accept room invite",
				"room_id", roomID,
				"error", err,
			)
		}
	}
}
