// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/dispatch"
	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/journal"
	"github.com/bureau-foundation/gatekeeper/lib/moderation"
	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/store"
	"github.com/bureau-foundation/gatekeeper/lib/verification"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// resyncConcurrency bounds the guild resyncs running at once during
// startup. Each resync reads a room's history, so this is mostly a
// bound on outstanding /messages requests.
const resyncConcurrency = 8

// promptManager is the kind-independent surface of a
// prompt.Manager[D].
type promptManager interface {
	Kind() document.Kind
	Resync(ctx context.Context, guild ref.RoomID) error
	Forget(guild ref.RoomID)
	HandleDeleted(ctx context.Context, event messaging.MessageDeleted)
	HandleEdited(ctx context.Context, event messaging.MessageEdited)
	HandleAction(ctx context.Context, event messaging.ActionInvoked) error
}

type gatekeeperConfig struct {
	Directory *config.Directory
	Backend   store.Backend
	Platform  messaging.Platform
	Policy    verification.Policy
	Self      ref.UserID
	Clock     clock.Clock

	// Meter receives the prompt counters. Nil uses the global
	// provider.
	Meter  metric.Meter
	Logger *slog.Logger
}

// gatekeeper routes platform events to the prompt managers and turns
// submissions into documents.
type gatekeeper struct {
	directory    *config.Directory
	platform     messaging.Platform
	verification *verification.Service
	moderation   *moderation.Service
	managers     []promptManager
	dispatcher   *dispatch.Dispatcher
	logger       *slog.Logger
}

func newGatekeeper(cfg gatekeeperConfig) (*gatekeeper, error) {
	directory := cfg.Directory
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	events := journal.New(cfg.Platform, directory.Journal, logger)

	verifier, err := verification.New(verification.Config{
		Store:    store.NewCollection[document.EntryRequest](cfg.Backend, document.KindEntryRequest),
		Platform: cfg.Platform,
		Policy:   cfg.Policy,
		Channels: func(guild ref.RoomID) (ref.RoomID, bool) {
			return directory.Channel(document.KindEntryRequest, guild)
		},
		Journal: events,
		Self:    cfg.Self,
		Clock:   cfg.Clock,
		Meter:   cfg.Meter,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating verification service: %w", err)
	}

	moderator, err := moderation.New(moderation.Config{
		Backend:  cfg.Backend,
		Platform: cfg.Platform,
		Channels: directory.Channel,
		Journal:  events,
		Self:     cfg.Self,
		Clock:    cfg.Clock,
		Meter:    cfg.Meter,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating moderation service: %w", err)
	}

	g := &gatekeeper{
		directory:    directory,
		platform:     cfg.Platform,
		verification: verifier,
		moderation:   moderator,
		managers: []promptManager{
			verifier.Manager(),
			moderator.Tickets.Manager(),
			moderator.Suggestions.Manager(),
			moderator.Reports.Manager(),
			moderator.Resources.Manager(),
		},
		dispatcher: dispatch.New(logger),
		logger:     logger,
	}
	for _, manager := range g.managers {
		g.dispatcher.Register(string(manager.Kind()), manager.HandleAction)
	}
	return g, nil
}

// start resyncs every configured guild the initial sync reported as
// joined.
func (g *gatekeeper) start(ctx context.Context, initial []messaging.PlatformEvent) {
	var available []ref.RoomID
	for _, event := range initial {
		joined, ok := event.(messaging.GuildAvailable)
		if !ok {
			continue
		}
		if _, configured := g.directory.Guild(joined.Room); configured {
			available = append(available, joined.Room)
		}
	}
	for _, space := range g.directory.Spaces() {
		if !slices.Contains(available, space) {
			g.logger.Warn("configured guild is not joined, waiting for an invite", "guild_id", space)
		}
	}
	g.resync(ctx, available...)
}

// resync rebuilds the prompts of every kind in each guild, in
// parallel. A failing guild or kind is logged and left for the next
// GuildAvailable; it never stops the others.
func (g *gatekeeper) resync(ctx context.Context, guilds ...ref.RoomID) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(resyncConcurrency)
	for _, guild := range guilds {
		for _, manager := range g.managers {
			group.Go(func() error {
				if err := manager.Resync(groupCtx, guild); err != nil {
					g.logger.Error("resync failed",
						"guild_id", guild,
						"kind", manager.Kind(),
						"error", err,
					)
				}
				return nil
			})
		}
	}
	group.Wait()
}

// handle is the event stream callback.
func (g *gatekeeper) handle(ctx context.Context, event messaging.PlatformEvent) {
	switch event := event.(type) {
	case messaging.GuildAvailable:
		if _, configured := g.directory.Guild(event.Room); configured {
			g.resync(ctx, event.Room)
		}
	case messaging.GuildUnavailable:
		if _, configured := g.directory.Guild(event.Room); configured {
			g.logger.Warn("guild unavailable, dropping its bindings", "guild_id", event.Room)
			for _, manager := range g.managers {
				manager.Forget(event.Room)
			}
		}
	case messaging.MessageDeleted:
		for _, manager := range g.managers {
			manager.HandleDeleted(ctx, event)
		}
	case messaging.MessageEdited:
		for _, manager := range g.managers {
			manager.HandleEdited(ctx, event)
		}
	case messaging.ActionInvoked:
		g.dispatcher.Dispatch(ctx, event)
	case messaging.SubmissionReceived:
		g.submit(ctx, event)
	}
}

// submit creates the document a submission form describes and tells
// the submitter how it went.
func (g *gatekeeper) submit(ctx context.Context, event messaging.SubmissionReceived) {
	space, ok := g.directory.GuildOf(event.Channel)
	if !ok {
		return
	}
	guild, _ := g.directory.Guild(space)
	logger := g.logger.With("guild_id", space, "user_id", event.User, "kind", event.Kind)

	partialID, err := g.create(ctx, guild, event)
	var reply string
	switch {
	case err == nil:
		logger.Info("submission accepted", "partial_id", partialID)
		reply = fmt.Sprintf("Thanks, your submission was received (reference %s).", partialID)
	case errors.Is(err, store.ErrExists):
		reply = "You already have an entry request waiting for a decision."
	case errors.Is(err, verification.ErrAlreadyDecided):
		reply = "Your entry request has already been decided."
	case errors.Is(err, prompt.ErrNoChannel):
		reply = "This community does not accept that kind of submission."
	case errors.Is(err, moderation.ErrInvalid):
		reply = strings.TrimPrefix(err.Error(), moderation.ErrInvalid.Error()+": ")
	default:
		logger.Error("submission failed", "error", err)
		reply = "Something went wrong while saving your submission. Please try again later."
	}
	if err != nil {
		logger.Debug("submission refused", "error", err)
	}
	if err := g.platform.Respond(ctx, event.Channel, event.User, reply); err != nil {
		logger.Warn("responding to submission failed", "error", err)
	}
}

func (g *gatekeeper) create(ctx context.Context, guild config.Guild, event messaging.SubmissionReceived) (string, error) {
	fields := event.Fields
	switch document.Kind(event.Kind) {
	case document.KindEntryRequest:
		if guild.EntryRole.IsZero() {
			return "", fmt.Errorf("entry requests in %s: %w", guild.Space, prompt.ErrNoChannel)
		}
		req, err := g.verification.Submit(ctx, guild.Space, event.User, guild.EntryRole, answers(fields))
		return req.PartialID, err
	case document.KindTicket:
		ticket, err := g.moderation.SubmitTicket(ctx, guild.Space, event.User, fields["topic"])
		return ticket.PartialID, err
	case document.KindSuggestion:
		suggestion, err := g.moderation.SubmitSuggestion(ctx, guild.Space, event.User, fields["body"])
		return suggestion.PartialID, err
	case document.KindReport:
		reported, err := userList(fields["reported"])
		if err != nil {
			return "", err
		}
		report, err := g.moderation.SubmitReport(ctx, guild.Space, event.User, fields["reason"], reported, fields["message_link"])
		return report.PartialID, err
	case document.KindResource:
		resource, err := g.moderation.SubmitResource(ctx, guild.Space, event.User, fields["url"], fields["description"])
		return resource.PartialID, err
	default:
		return "", fmt.Errorf("%w: unknown form %q", moderation.ErrInvalid, event.Kind)
	}
}

// answers turns form fields into entry request answers, ordered by
// question.
func answers(fields map[string]string) []document.Answer {
	questions := make([]string, 0, len(fields))
	for question := range fields {
		questions = append(questions, question)
	}
	slices.Sort(questions)
	result := make([]document.Answer, 0, len(questions))
	for _, question := range questions {
		result = append(result, document.Answer{Question: question, Answer: fields[question]})
	}
	return result
}

// userList parses a comma or whitespace separated list of user IDs.
func userList(raw string) ([]ref.UserID, error) {
	var users []ref.UserID
	for _, field := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	}) {
		user, err := ref.ParseUserID(field)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a user ID", moderation.ErrInvalid, field)
		}
		users = append(users, user)
	}
	return users, nil
}
