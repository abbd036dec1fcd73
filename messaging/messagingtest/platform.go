// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagingtest provides an in-memory messaging.Platform for
// tests. It records every side effect and can simulate member-driven
// deletions and tampering edits.
package messagingtest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// Operation names accepted by Platform.Fail.
const (
	OpSendPrompt     = "SendPrompt"
	OpEditPrompt     = "EditPrompt"
	OpDeleteMessage  = "DeleteMessage"
	OpChannelHistory = "ChannelHistory"
	OpGrantRole      = "GrantRole"
	OpBanMember      = "BanMember"
	OpRespond        = "Respond"
	OpPostNotice     = "PostNotice"
	OpCreateChannel  = "CreateChannel"
	OpCloseChannel   = "CloseChannel"
)

// Message is a message held by the fake platform.
type Message struct {
	ID      ref.EventID
	Channel ref.RoomID
	Sender  ref.UserID
	Content messaging.PromptContent
	Intact  bool
	Deleted bool
	Edits   int
}

// Grant records one GrantRole call.
type Grant struct {
	Guild ref.RoomID
	Role  ref.RoomID
	User  ref.UserID
}

// Ban records one BanMember call.
type Ban struct {
	Guild  ref.RoomID
	User   ref.UserID
	Reason string
}

// Response records one Respond call.
type Response struct {
	Channel ref.RoomID
	User    ref.UserID
	Text    string
}

// Notice records one PostNotice call.
type Notice struct {
	Channel ref.RoomID
	Text    string
}

// Platform is an in-memory messaging.Platform. The zero value is not
// usable; call New.
type Platform struct {
	self ref.UserID

	mu       sync.Mutex
	sequence int
	messages map[ref.EventID]*Message
	order    []ref.EventID
	failures map[string]error

	deletes   []ref.EventID
	grants    []Grant
	bans      []Ban
	responses []Response
	notices   []Notice
	created   []ref.RoomID
	closed    []ref.RoomID
}

var _ messaging.Platform = (*Platform)(nil)

// New creates a fake platform whose own messages are sent as self.
func New(self ref.UserID) *Platform {
	return &Platform{
		self:     self,
		messages: make(map[ref.EventID]*Message),
		failures: make(map[string]error),
	}
}

// Fail makes every subsequent call to op return err. A nil err clears
// the failure.
func (p *Platform) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

func (p *Platform) failure(op string) error {
	return p.failures[op]
}

func (p *Platform) nextEventID() ref.EventID {
	p.sequence++
	return ref.MustParseEventID(fmt.Sprintf("$fake%d", p.sequence))
}

// Seed places a pre-existing message in channel, as if it had been
// posted before the service started. A zero sender means the service
// account.
func (p *Platform) Seed(channel ref.RoomID, sender ref.UserID, content messaging.PromptContent) ref.EventID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sender.IsZero() {
		sender = p.self
	}
	id := p.nextEventID()
	p.messages[id] = &Message{
		ID:      id,
		Channel: channel,
		Sender:  sender,
		Content: content,
		Intact:  content.Body != "" || content.Title != "",
	}
	p.order = append(p.order, id)
	return id
}

// UserDelete removes a message as a member or moderator would and
// returns the platform event the service receives for it.
func (p *Platform) UserDelete(id ref.EventID) messaging.MessageDeleted {
	p.mu.Lock()
	defer p.mu.Unlock()
	message, ok := p.messages[id]
	if !ok {
		panic(fmt.Sprintf("messagingtest: UserDelete of unknown message %s", id))
	}
	message.Deleted = true
	return messaging.MessageDeleted{Channel: message.Channel, Message: id}
}

// TamperEdit sends a stripping edit of a message from editor and
// returns the resulting edit event. As on Matrix, the edit only
// changes what the message shows when editor sent the original;
// otherwise it stays in the channel history as an invalid message of
// its own.
func (p *Platform) TamperEdit(id ref.EventID, editor ref.UserID) messaging.MessageEdited {
	p.mu.Lock()
	defer p.mu.Unlock()
	message, ok := p.messages[id]
	if !ok {
		panic(fmt.Sprintf("messagingtest: TamperEdit of unknown message %s", id))
	}
	if editor == message.Sender {
		message.Intact = false
		message.Edits++
	} else {
		id := p.nextEventID()
		p.messages[id] = &Message{ID: id, Channel: message.Channel, Sender: editor}
		p.order = append(p.order, id)
	}
	return messaging.MessageEdited{Channel: message.Channel, Message: id, Editor: editor, Intact: false}
}

// Message returns a copy of the message with the given ID.
func (p *Platform) Message(id ref.EventID) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	message, ok := p.messages[id]
	if !ok {
		return Message{}, false
	}
	return *message, true
}

// Live returns the undeleted messages in channel, oldest first.
func (p *Platform) Live(channel ref.RoomID) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var live []Message
	for _, id := range p.order {
		message := p.messages[id]
		if message.Channel == channel && !message.Deleted {
			live = append(live, *message)
		}
	}
	return live
}

// Deletes returns the IDs passed to successful DeleteMessage calls.
func (p *Platform) Deletes() []ref.EventID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.deletes)
}

// Grants returns every successful GrantRole call.
func (p *Platform) Grants() []Grant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.grants)
}

// Bans returns every successful BanMember call.
func (p *Platform) Bans() []Ban {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.bans)
}

// Responses returns every Respond call.
func (p *Platform) Responses() []Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.responses)
}

// Notices returns every PostNotice call.
func (p *Platform) Notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.notices)
}

// CreatedChannels returns the channels made by CreateChannel.
func (p *Platform) CreatedChannels() []ref.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.created)
}

// ClosedChannels returns the channels passed to CloseChannel.
func (p *Platform) ClosedChannels() []ref.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.closed)
}

// SendPrompt implements messaging.Platform.
func (p *Platform) SendPrompt(ctx context.Context, channel ref.RoomID, content messaging.PromptContent) (ref.EventID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpSendPrompt); err != nil {
		return ref.EventID{}, err
	}
	id := p.nextEventID()
	p.messages[id] = &Message{
		ID:      id,
		Channel: channel,
		Sender:  p.self,
		Content: content,
		Intact:  true,
	}
	p.order = append(p.order, id)
	return id, nil
}

// EditPrompt implements messaging.Platform.
func (p *Platform) EditPrompt(ctx context.Context, channel ref.RoomID, id ref.EventID, content messaging.PromptContent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpEditPrompt); err != nil {
		return err
	}
	message, ok := p.messages[id]
	if !ok || message.Deleted {
		return messaging.ErrMessageGone
	}
	message.Content = content
	message.Intact = true
	message.Edits++
	return nil
}

// DeleteMessage implements messaging.Platform.
func (p *Platform) DeleteMessage(ctx context.Context, channel ref.RoomID, id ref.EventID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpDeleteMessage); err != nil {
		return err
	}
	message, ok := p.messages[id]
	if !ok || message.Deleted {
		return messaging.ErrMessageGone
	}
	message.Deleted = true
	p.deletes = append(p.deletes, id)
	return nil
}

// ChannelHistory implements messaging.Platform.
func (p *Platform) ChannelHistory(ctx context.Context, channel ref.RoomID) ([]messaging.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpChannelHistory); err != nil {
		return nil, err
	}
	var history []messaging.Message
	for i := len(p.order) - 1; i >= 0; i-- {
		message := p.messages[p.order[i]]
		if message.Channel != channel || message.Deleted {
			continue
		}
		history = append(history, messaging.Message{
			ID:      message.ID,
			Channel: message.Channel,
			Sender:  message.Sender,
			Token:   message.Content.Token,
			Intact:  message.Intact,
		})
	}
	return history, nil
}

// GrantRole implements messaging.Platform.
func (p *Platform) GrantRole(ctx context.Context, guild, role ref.RoomID, user ref.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpGrantRole); err != nil {
		return err
	}
	p.grants = append(p.grants, Grant{Guild: guild, Role: role, User: user})
	return nil
}

// BanMember implements messaging.Platform.
func (p *Platform) BanMember(ctx context.Context, guild ref.RoomID, user ref.UserID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpBanMember); err != nil {
		return err
	}
	p.bans = append(p.bans, Ban{Guild: guild, User: user, Reason: reason})
	return nil
}

// Respond implements messaging.Platform.
func (p *Platform) Respond(ctx context.Context, channel ref.RoomID, user ref.UserID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpRespond); err != nil {
		return err
	}
	p.responses = append(p.responses, Response{Channel: channel, User: user, Text: text})
	return nil
}

// PostNotice implements messaging.Platform.
func (p *Platform) PostNotice(ctx context.Context, channel ref.RoomID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpPostNotice); err != nil {
		return err
	}
	p.notices = append(p.notices, Notice{Channel: channel, Text: text})
	return nil
}

// CreateChannel implements messaging.Platform.
func (p *Platform) CreateChannel(ctx context.Context, guild ref.RoomID, name string, members []ref.UserID) (ref.RoomID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpCreateChannel); err != nil {
		return ref.RoomID{}, err
	}
	p.sequence++
	channel := ref.MustParseRoomID(fmt.Sprintf("!channel%d:fake", p.sequence))
	p.created = append(p.created, channel)
	return channel, nil
}

// CloseChannel implements messaging.Platform.
func (p *Platform) CloseChannel(ctx context.Context, channel ref.RoomID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure(OpCloseChannel); err != nil {
		return err
	}
	p.closed = append(p.closed, channel)
	return nil
}
