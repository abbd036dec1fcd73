// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/journal"
	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/store"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// ErrInvalid is returned by the Submit helpers when the submitted
// fields are unusable. The message is fit to show the submitter.
var ErrInvalid = errors.New("moderation: invalid submission")

// ChannelsFunc returns the channel configured for kind in guild.
type ChannelsFunc func(kind document.Kind, guild ref.RoomID) (ref.RoomID, bool)

// Config holds the collaborators shared by every moderation queue.
type Config struct {
	Backend  store.Backend
	Platform messaging.Platform
	Channels ChannelsFunc
	Journal  *journal.Journal
	Self     ref.UserID
	Clock    clock.Clock
	Logger   *slog.Logger
	Meter    metric.Meter
}

// Queue is one moderation kind: its collection and prompt manager.
type Queue[D document.Document] struct {
	store   *store.Collection[D]
	manager *prompt.Manager[D]
	logger  *slog.Logger
}

// Manager returns the queue's prompt manager.
func (q *Queue[D]) Manager() *prompt.Manager[D] { return q.manager }

// Get returns the document with the given partial id.
func (q *Queue[D]) Get(ctx context.Context, partialID string) (D, error) {
	return q.store.Get(ctx, document.ID{Collection: q.store.Kind(), PartialID: partialID})
}

// checkChannel fails with prompt.ErrNoChannel when guild has no
// channel for the queue's kind.
func (q *Queue[D]) checkChannel(guild ref.RoomID) error {
	if _, ok := q.manager.Channel(guild); !ok {
		return fmt.Errorf("moderation: %w for %s in %s", prompt.ErrNoChannel, q.store.Kind(), guild)
	}
	return nil
}

func (q *Queue[D]) submit(ctx context.Context, doc D) error {
	if err := q.checkChannel(doc.Guild()); err != nil {
		return err
	}
	if err := q.store.Create(ctx, doc); err != nil {
		return fmt.Errorf("moderation: creating %s: %w", doc.DocumentID(), err)
	}
	q.logger.Info("document submitted",
		"guild_id", doc.Guild(),
		"document_id", doc.DocumentID(),
		"user_id", doc.Author(),
	)
	return q.manager.Open(ctx, doc)
}

// Service holds the four moderation queues.
type Service struct {
	Tickets     *Queue[document.Ticket]
	Suggestions *Queue[document.Suggestion]
	Reports     *Queue[document.Report]
	Resources   *Queue[document.Resource]

	platform messaging.Platform
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates the moderation queues over config.Backend.
func New(config Config) (*Service, error) {
	if config.Backend == nil {
		return nil, fmt.Errorf("moderation: Backend is required")
	}
	if config.Platform == nil {
		return nil, fmt.Errorf("moderation: Platform is required")
	}
	if config.Channels == nil {
		return nil, fmt.Errorf("moderation: Channels is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	service := &Service{platform: config.Platform, clock: config.Clock, logger: config.Logger}

	var err error
	if service.Tickets, err = newQueue(config, document.KindTicket, presentTicket, service.closeTicketChannel); err != nil {
		return nil, err
	}
	if service.Suggestions, err = newQueue(config, document.KindSuggestion, presentSuggestion, nil); err != nil {
		return nil, err
	}
	if service.Reports, err = newQueue(config, document.KindReport, presentReport, nil); err != nil {
		return nil, err
	}
	if service.Resources, err = newQueue(config, document.KindResource, presentResource, nil); err != nil {
		return nil, err
	}
	return service, nil
}

func newQueue[D resolvable[D]](config Config, kind document.Kind, present presenter[D], finalize func(context.Context, D)) (*Queue[D], error) {
	collection := store.NewCollection[D](config.Backend, kind)
	manager, err := prompt.NewManager(prompt.Config[D]{
		Adapter: &adapter[D]{
			kind:     kind,
			present:  present,
			journal:  config.Journal,
			finalize: finalize,
		},
		Store:    collection,
		Platform: config.Platform,
		Channels: func(guild ref.RoomID) (ref.RoomID, bool) {
			return config.Channels(kind, guild)
		},
		Self:   config.Self,
		Clock:  config.Clock,
		Logger: config.Logger,
		Meter:  config.Meter,
	})
	if err != nil {
		return nil, err
	}
	return &Queue[D]{store: collection, manager: manager, logger: config.Logger}, nil
}

func (s *Service) header(guild ref.RoomID, author ref.UserID) document.Header {
	return document.Header{
		PartialID: document.NewPartialID(),
		GuildID:   guild,
		AuthorID:  author,
		CreatedAt: s.clock.Now(),
	}
}

// SubmitTicket opens a ticket: a private room shared by the author and
// whoever the room's moderators invite, plus a prompt in the tickets
// channel.
func (s *Service) SubmitTicket(ctx context.Context, guild ref.RoomID, author ref.UserID, topic string) (document.Ticket, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return document.Ticket{}, fmt.Errorf("%w: a ticket needs a topic", ErrInvalid)
	}
	if err := s.Tickets.checkChannel(guild); err != nil {
		return document.Ticket{}, err
	}
	ticket := document.Ticket{Header: s.header(guild, author), Topic: topic}

	name := "ticket-" + ticket.PartialID[:8]
	room, err := s.platform.CreateChannel(ctx, guild, name, []ref.UserID{author})
	if err != nil {
		return document.Ticket{}, fmt.Errorf("moderation: creating room for ticket %s: %w", ticket.PartialID, err)
	}
	ticket.ChannelID = room

	if err := s.Tickets.submit(ctx, ticket); err != nil {
		s.closeTicketChannel(ctx, ticket)
		return ticket, err
	}
	return ticket, nil
}

func (s *Service) closeTicketChannel(ctx context.Context, ticket document.Ticket) {
	if ticket.ChannelID.IsZero() {
		return
	}
	if err := s.platform.CloseChannel(ctx, ticket.ChannelID, "ticket closed"); err != nil {
		s.logger.Warn("closing ticket room failed",
			"document_id", ticket.DocumentID(),
			"room_id", ticket.ChannelID,
			"error", err,
		)
	}
}

// SubmitSuggestion records a suggestion and posts its prompt.
func (s *Service) SubmitSuggestion(ctx context.Context, guild ref.RoomID, author ref.UserID, body string) (document.Suggestion, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return document.Suggestion{}, fmt.Errorf("%w: a suggestion needs some text", ErrInvalid)
	}
	suggestion := document.Suggestion{Header: s.header(guild, author), Body: body}
	return suggestion, s.Suggestions.submit(ctx, suggestion)
}

// SubmitReport records a report about the given users and posts its
// prompt. messageLink may be empty.
func (s *Service) SubmitReport(ctx context.Context, guild ref.RoomID, author ref.UserID, reason string, reported []ref.UserID, messageLink string) (document.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return document.Report{}, fmt.Errorf("%w: a report needs a reason", ErrInvalid)
	}
	report := document.Report{
		Header:      s.header(guild, author),
		Reason:      reason,
		Reported:    reported,
		MessageLink: messageLink,
	}
	return report, s.Reports.submit(ctx, report)
}

// SubmitResource records a link for review and posts its prompt. Only
// http and https URLs are accepted.
func (s *Service) SubmitResource(ctx context.Context, guild ref.RoomID, author ref.UserID, link, description string) (document.Resource, error) {
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return document.Resource{}, fmt.Errorf("%w: %q is not an http or https link", ErrInvalid, link)
	}
	resource := document.Resource{
		Header:      s.header(guild, author),
		URL:         parsed.String(),
		Description: strings.TrimSpace(description),
	}
	return resource, s.Resources.submit(ctx, resource)
}
