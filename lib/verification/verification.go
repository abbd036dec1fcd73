// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/journal"
	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/store"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// ErrAlreadyDecided is returned by Submit when the user's entry
// request in the guild has already been accepted or rejected.
var ErrAlreadyDecided = errors.New("verification: entry request already decided")

// Config holds the collaborators of a Service.
type Config struct {
	Store    *store.Collection[document.EntryRequest]
	Platform messaging.Platform
	Policy   Policy
	Channels prompt.ChannelFunc
	Journal  *journal.Journal
	Self     ref.UserID
	Clock    clock.Clock
	Logger   *slog.Logger
	Meter    metric.Meter
}

// Service accepts entry requests and runs their votes.
type Service struct {
	store   *store.Collection[document.EntryRequest]
	manager *prompt.Manager[document.EntryRequest]
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a Service and the prompt manager for entry requests.
func New(config Config) (*Service, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("verification: Store is required")
	}
	if config.Policy == nil {
		return nil, fmt.Errorf("verification: Policy is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	manager, err := prompt.NewManager(prompt.Config[document.EntryRequest]{
		Adapter: &adapter{
			platform: config.Platform,
			policy:   config.Policy,
			journal:  config.Journal,
			logger:   logger,
		},
		Store:    config.Store,
		Platform: config.Platform,
		Channels: config.Channels,
		Self:     config.Self,
		Clock:    clk,
		Logger:   logger,
		Meter:    config.Meter,
	})
	if err != nil {
		return nil, err
	}
	return &Service{store: config.Store, manager: manager, clock: clk, logger: logger}, nil
}

// Manager returns the prompt manager for entry requests.
func (s *Service) Manager() *prompt.Manager[document.EntryRequest] { return s.manager }

// Lookup returns the entry request author submitted in guild, or
// store.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, guild ref.RoomID, author ref.UserID) (document.EntryRequest, error) {
	return s.store.Get(ctx, document.EntryRequestID(guild, author))
}

// Submit creates an entry request and posts its prompt. A user has at
// most one request per guild: if one is still being voted on the
// error wraps store.ErrExists, and if it was decided the error is
// ErrAlreadyDecided.
func (s *Service) Submit(ctx context.Context, guild ref.RoomID, author ref.UserID, role ref.RoomID, answers []document.Answer) (document.EntryRequest, error) {
	id := document.EntryRequestID(guild, author)
	existing, err := s.store.Get(ctx, id)
	switch {
	case err == nil && existing.IsOpen():
		return existing, fmt.Errorf("verification: %s in %s: %w", author, guild, store.ErrExists)
	case err == nil:
		return existing, fmt.Errorf("%w: %s in %s was %s", ErrAlreadyDecided, author, guild, existing.Decision)
	case !errors.Is(err, store.ErrNotFound):
		return document.EntryRequest{}, fmt.Errorf("verification: looking up %s: %w", id, err)
	}

	req := document.EntryRequest{
		Header: document.Header{
			PartialID: id.PartialID,
			GuildID:   guild,
			AuthorID:  author,
			CreatedAt: s.clock.Now(),
		},
		RequestedRoleID: role,
		Answers:         answers,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return document.EntryRequest{}, fmt.Errorf("verification: creating %s: %w", id, err)
	}
	s.logger.Info("entry request submitted",
		"guild_id", guild,
		"document_id", id,
		"user_id", author,
	)
	if err := s.manager.Open(ctx, req); err != nil {
		return req, err
	}
	return req, nil
}
