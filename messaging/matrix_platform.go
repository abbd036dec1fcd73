// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// historyPageSize is the page size used when walking channel history.
const historyPageSize = 100

// MatrixPlatform implements Platform on top of a DirectSession.
//
// Roles are modelled as gated rooms: granting a role invites the
// member into the role's room. Channels created for tickets are
// private rooms parented to the guild space.
type MatrixPlatform struct {
	session *DirectSession
	logger  *slog.Logger
}

// NewMatrixPlatform wraps session as a Platform.
func NewMatrixPlatform(session *DirectSession, logger *slog.Logger) *MatrixPlatform {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatrixPlatform{session: session, logger: logger}
}

var _ Platform = (*MatrixPlatform)(nil)

// markdown renders prompt bodies. Raw HTML in the source is omitted
// (goldmark's default without html.WithUnsafe), so member-written text
// cannot inject markup into formatted_body.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.Strikethrough,
		extension.Linkify,
	),
)

// renderMarkdown converts source to HTML, falling back to escaped text
// if conversion fails.
func renderMarkdown(source string) string {
	var out bytes.Buffer
	if err := markdown.Convert([]byte(source), &out); err != nil {
		return "<p>" + html.EscapeString(source) + "</p>"
	}
	return strings.TrimRight(out.String(), "\n")
}

// RenderPrompt converts a PromptContent into the message content sent
// to the room. The plain body is what non-widget clients display; the
// body is treated as Markdown in the formatted variant.
func RenderPrompt(content PromptContent) MessageContent {
	var plain, formatted strings.Builder

	if content.Title != "" {
		plain.WriteString(content.Title)
		plain.WriteString("\n\n")
		formatted.WriteString("<h4>" + html.EscapeString(content.Title) + "</h4>")
	}
	if content.Body != "" {
		plain.WriteString(content.Body)
		plain.WriteString("\n")
		formatted.WriteString(renderMarkdown(content.Body))
	}
	if len(content.Fields) > 0 {
		formatted.WriteString("<ul>")
		for _, field := range content.Fields {
			fmt.Fprintf(&plain, "%s: %s\n", field.Name, field.Value)
			formatted.WriteString("<li><b>" + html.EscapeString(field.Name) + ":</b> " + html.EscapeString(field.Value) + "</li>")
		}
		formatted.WriteString("</ul>")
	}

	return MessageContent{
		MsgType:       "m.notice",
		Body:          strings.TrimRight(plain.String(), "\n"),
		Format:        "org.matrix.custom.html",
		FormattedBody: formatted.String(),
		PromptToken:   content.Token,
		Controls:      content.Controls,
	}
}

// SendPrompt posts a rendered prompt.
func (p *MatrixPlatform) SendPrompt(ctx context.Context, channel ref.RoomID, content PromptContent) (ref.EventID, error) {
	return p.session.SendMessage(ctx, channel, RenderPrompt(content))
}

// EditPrompt posts an m.replace edit of message.
func (p *MatrixPlatform) EditPrompt(ctx context.Context, channel ref.RoomID, message ref.EventID, content PromptContent) error {
	_, err := p.session.SendMessage(ctx, channel, NewReplacement(message, RenderPrompt(content)))
	return err
}

// DeleteMessage redacts message.
func (p *MatrixPlatform) DeleteMessage(ctx context.Context, channel ref.RoomID, message ref.EventID, reason string) error {
	_, err := p.session.Redact(ctx, channel, message, reason)
	if IsMatrixError(err, ErrCodeNotFound) {
		return fmt.Errorf("%w: %w", ErrMessageGone, err)
	}
	return err
}

// ChannelHistory walks the room backwards to its start and returns
// every unredacted message. An edit is folded into the message it
// replaces: the newest edit by the original sender decides Intact.
// Edit events that clients never apply, because they come from
// someone other than the original sender or target a message that is
// gone, are returned after the messages as invalid messages of their
// own so they can be removed.
func (p *MatrixPlatform) ChannelHistory(ctx context.Context, channel ref.RoomID) ([]Message, error) {
	type edit struct {
		id      ref.EventID
		sender  ref.UserID
		target  ref.EventID
		content *MessageContent
	}
	var edits []edit
	editsOf := make(map[ref.EventID][]edit)
	senders := make(map[ref.EventID]ref.UserID)

	var messages []Message
	from := ""
	for {
		page, err := p.session.RoomMessages(ctx, channel, RoomMessagesOptions{
			From:      from,
			Direction: "b",
			Limit:     historyPageSize,
		})
		if err != nil {
			return nil, err
		}

		for _, event := range page.Chunk {
			if event.Type != EventTypeMessage || event.Redacted() {
				continue
			}
			var content MessageContent
			if err := json.Unmarshal(event.Content, &content); err != nil {
				p.logger.Debug("undecodable message in history",
					"room_id", channel,
					"event_id", event.EventID,
					"error", err,
				)
				senders[event.EventID] = event.Sender
				messages = append(messages, Message{ID: event.EventID, Channel: channel, Sender: event.Sender})
				continue
			}

			if content.IsEdit() {
				replacement := edit{
					id:      event.EventID,
					sender:  event.Sender,
					target:  content.RelatesTo.EventID,
					content: content.NewContent,
				}
				edits = append(edits, replacement)
				if replacement.content != nil {
					editsOf[replacement.target] = append(editsOf[replacement.target], replacement)
				}
				continue
			}

			// Walking backwards, edits are newest first.
			effective := content
			for _, replacement := range editsOf[event.EventID] {
				if replacement.sender == event.Sender {
					effective = *replacement.content
					break
				}
			}
			senders[event.EventID] = event.Sender
			messages = append(messages, Message{
				ID:      event.EventID,
				Channel: channel,
				Sender:  event.Sender,
				Token:   content.PromptToken,
				Intact:  effective.Intact(),
			})
		}

		if page.End == "" || len(page.Chunk) == 0 {
			break
		}
		from = page.End
	}

	for _, replacement := range edits {
		if sender, ok := senders[replacement.target]; ok && sender == replacement.sender {
			continue
		}
		messages = append(messages, Message{ID: replacement.id, Channel: channel, Sender: replacement.sender})
	}
	return messages, nil
}

// GrantRole invites user into the role room.
func (p *MatrixPlatform) GrantRole(ctx context.Context, guild, role ref.RoomID, user ref.UserID) error {
	p.logger.Debug("granting role", "guild", guild, "role", role, "user_id", user)
	return p.session.InviteUser(ctx, role, user)
}

// BanMember bans user from the guild space.
func (p *MatrixPlatform) BanMember(ctx context.Context, guild ref.RoomID, user ref.UserID, reason string) error {
	return p.session.BanUser(ctx, guild, user, reason)
}

// Respond sends a notice targeted at user.
func (p *MatrixPlatform) Respond(ctx context.Context, channel ref.RoomID, user ref.UserID, text string) error {
	_, err := p.session.SendMessage(ctx, channel, NewTargetedNotice(text, user))
	return err
}

// PostNotice sends an untargeted notice.
func (p *MatrixPlatform) PostNotice(ctx context.Context, channel ref.RoomID, text string) error {
	_, err := p.session.SendMessage(ctx, channel, NewNotice(text))
	return err
}

// CreateChannel creates a private room parented to the guild space
// and invites members.
func (p *MatrixPlatform) CreateChannel(ctx context.Context, guild ref.RoomID, name string, members []ref.UserID) (ref.RoomID, error) {
	invites := make([]string, 0, len(members))
	for _, member := range members {
		invites = append(invites, member.String())
	}
	response, err := p.session.CreateRoom(ctx, CreateRoomRequest{
		Name:       name,
		Visibility: "private",
		Preset:     "private_chat",
		Invite:     invites,
		InitialState: []StateEvent{{
			Type:     EventTypeSpaceParent,
			StateKey: guild.String(),
			Content: map[string]any{
				"canonical": true,
				"via":       []string{p.session.UserID().Server()},
			},
		}},
	})
	if err != nil {
		return ref.RoomID{}, err
	}
	return response.RoomID, nil
}

// CloseChannel kicks every other member out of channel and then leaves
// it. Kick failures do not stop the close; they are returned joined.
func (p *MatrixPlatform) CloseChannel(ctx context.Context, channel ref.RoomID, reason string) error {
	members, err := p.session.GetRoomMembers(ctx, channel)
	if err != nil {
		return err
	}

	var errs []error
	self := p.session.UserID()
	for _, member := range members {
		if member.UserID == self {
			continue
		}
		if member.Membership != "join" && member.Membership != "invite" {
			continue
		}
		if err := p.session.KickUser(ctx, channel, member.UserID, reason); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.session.LeaveRoom(ctx, channel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
