// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/store"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// ErrNoChannel is returned by Open when the guild has no channel
// configured for the manager's kind.
var ErrNoChannel = errors.New("prompt: no channel configured")

// Config holds the collaborators of a Manager.
type Config[D document.Document] struct {
	Adapter  Adapter[D]
	Store    Store[D]
	Platform messaging.Platform
	Channels ChannelFunc

	// Self is the account the service posts as. When set, resync only
	// adopts prompts sent by Self; look-alike messages from anyone
	// else are deleted.
	Self ref.UserID

	// Clock stamps interactions. Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to discarding output.
	Logger *slog.Logger

	// Meter defaults to the global meter provider.
	Meter metric.Meter
}

// Manager maintains the prompts of one document kind across every
// guild. It is safe for concurrent use; operations on the same guild
// are serialised.
type Manager[D document.Document] struct {
	kind     document.Kind
	adapter  Adapter[D]
	store    Store[D]
	platform messaging.Platform
	channels ChannelFunc
	self     ref.UserID
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics

	mu           sync.Mutex
	guilds       map[ref.RoomID]*guildState
	channelGuild map[ref.RoomID]ref.RoomID
}

// guildState is the binding cache for one guild. mu is held for the
// whole of any operation on the guild, including platform calls.
type guildState struct {
	mu         sync.Mutex
	guild      ref.RoomID
	channel    ref.RoomID
	byDocument map[string]ref.EventID
	byMessage  map[ref.EventID]string
}

func (s *guildState) reset(channel ref.RoomID) {
	s.channel = channel
	s.byDocument = make(map[string]ref.EventID)
	s.byMessage = make(map[ref.EventID]string)
}

func (s *guildState) bind(partialID string, message ref.EventID) {
	if previous, ok := s.byDocument[partialID]; ok {
		delete(s.byMessage, previous)
	}
	s.byDocument[partialID] = message
	s.byMessage[message] = partialID
}

func (s *guildState) unbind(partialID string) {
	if message, ok := s.byDocument[partialID]; ok {
		delete(s.byMessage, message)
		delete(s.byDocument, partialID)
	}
}

// NewManager creates a Manager from config.
func NewManager[D document.Document](config Config[D]) (*Manager[D], error) {
	if config.Adapter == nil {
		return nil, fmt.Errorf("prompt: Adapter is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("prompt: Store is required")
	}
	if config.Platform == nil {
		return nil, fmt.Errorf("prompt: Platform is required")
	}
	if config.Channels == nil {
		return nil, fmt.Errorf("prompt: Channels is required")
	}
	kind := config.Adapter.Kind()
	if !kind.Valid() {
		return nil, fmt.Errorf("prompt: adapter reports unknown kind %q", kind)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	instruments, err := newMetrics(config.Meter, kind)
	if err != nil {
		return nil, fmt.Errorf("prompt: creating metrics: %w", err)
	}

	return &Manager[D]{
		kind:         kind,
		adapter:      config.Adapter,
		store:        config.Store,
		platform:     config.Platform,
		channels:     config.Channels,
		self:         config.Self,
		clock:        clk,
		logger:       logger.With("kind", string(kind)),
		metrics:      instruments,
		guilds:       make(map[ref.RoomID]*guildState),
		channelGuild: make(map[ref.RoomID]ref.RoomID),
	}, nil
}

// Kind returns the document kind the manager handles.
func (m *Manager[D]) Kind() document.Kind { return m.kind }

// Channel returns the prompt channel configured for guild.
func (m *Manager[D]) Channel(guild ref.RoomID) (ref.RoomID, bool) {
	return m.channels(guild)
}

// state returns the guildState for guild, creating it if needed, and
// records channel as belonging to guild.
func (m *Manager[D]) state(guild, channel ref.RoomID) *guildState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.guilds[guild]
	if !ok {
		state = &guildState{guild: guild}
		state.reset(channel)
		m.guilds[guild] = state
	}
	for known, owner := range m.channelGuild {
		if owner == guild && known != channel {
			delete(m.channelGuild, known)
		}
	}
	m.channelGuild[channel] = guild
	return state
}

// stateForChannel returns the state of the guild that owns channel.
func (m *Manager[D]) stateForChannel(channel ref.RoomID) (*guildState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	guild, ok := m.channelGuild[channel]
	if !ok {
		return nil, false
	}
	state, ok := m.guilds[guild]
	return state, ok
}

// Resync rebuilds guild's bindings from the store and the channel.
// Open documents with a valid prompt adopt it; open documents without
// one get a new prompt; every other message in the channel is deleted.
// A send or delete failure is logged and left for the next resync.
func (m *Manager[D]) Resync(ctx context.Context, guild ref.RoomID) error {
	channel, ok := m.channels(guild)
	if !ok {
		m.logger.Debug("no prompt channel configured, skipping resync", "guild_id", guild)
		return nil
	}
	state := m.state(guild, channel)
	state.mu.Lock()
	defer state.mu.Unlock()

	history, err := m.platform.ChannelHistory(ctx, channel)
	if err != nil {
		return fmt.Errorf("prompt: fetching %s history in %s: %w", m.kind, channel, err)
	}

	// History is newest first, so a duplicate prompt for the same
	// document keeps the newest copy.
	unclaimed := make(map[string]ref.EventID)
	var discard []ref.EventID
	for _, message := range history {
		partialID, ok := m.decodePrompt(message)
		if !ok {
			discard = append(discard, message.ID)
			continue
		}
		if _, duplicate := unclaimed[partialID]; duplicate {
			discard = append(discard, message.ID)
			continue
		}
		unclaimed[partialID] = message.ID
	}

	docs, err := m.store.QueryOpen(ctx, guild)
	if err != nil {
		return fmt.Errorf("prompt: querying open %s in %s: %w", m.kind, guild, err)
	}

	state.reset(channel)
	adopted, posted := 0, 0
	for _, doc := range docs {
		partialID := doc.DocumentID().PartialID
		if message, ok := unclaimed[partialID]; ok {
			state.bind(partialID, message)
			delete(unclaimed, partialID)
			adopted++
			continue
		}
		if m.post(ctx, state, doc) {
			posted++
		}
	}
	for _, message := range unclaimed {
		discard = append(discard, message)
	}
	for _, message := range discard {
		m.deleteMessage(ctx, channel, message, "stale prompt")
	}

	m.logger.Info("prompt resync complete",
		"guild_id", guild,
		"channel_id", channel,
		"open_documents", len(docs),
		"adopted", adopted,
		"posted", posted,
		"deleted", len(discard),
	)
	return nil
}

// decodePrompt reports whether message is an intact prompt of this
// kind and returns the partial id it carries.
func (m *Manager[D]) decodePrompt(message messaging.Message) (string, bool) {
	if !m.self.IsZero() && message.Sender != m.self {
		return "", false
	}
	if !message.Intact || message.Token == "" {
		return "", false
	}
	return DecodeToken(m.kind, message.Token)
}

// Open posts a prompt for a newly created document. It is a no-op if
// the document is closed or already has a prompt. A failed send is
// logged and repaired by the next resync.
func (m *Manager[D]) Open(ctx context.Context, doc D) error {
	if !doc.IsOpen() {
		return nil
	}
	guild := doc.Guild()
	channel, ok := m.channels(guild)
	if !ok {
		return fmt.Errorf("%w for %s in guild %s", ErrNoChannel, m.kind, guild)
	}
	state := m.state(guild, channel)
	state.mu.Lock()
	defer state.mu.Unlock()

	if _, bound := state.byDocument[doc.DocumentID().PartialID]; bound {
		return nil
	}
	m.post(ctx, state, doc)
	return nil
}

// HandleDeleted reacts to a deleted message. If it was the prompt of
// a still-open document, a replacement prompt is posted.
func (m *Manager[D]) HandleDeleted(ctx context.Context, event messaging.MessageDeleted) {
	state, ok := m.stateForChannel(event.Channel)
	if !ok {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	m.recoverPrompt(ctx, state, event.Message)
}

// HandleEdited reacts to an edit. An edit that strips a tracked
// prompt's content is treated as tampering: the message is deleted
// and then recovered exactly as a deletion would be.
//
// Clients only apply an m.replace from the original sender, so edits
// by anyone other than the service leave the prompt as rendered and
// are ignored. When Self is unset every editor is trusted.
func (m *Manager[D]) HandleEdited(ctx context.Context, event messaging.MessageEdited) {
	if event.Intact {
		return
	}
	if !m.self.IsZero() && event.Editor != m.self {
		m.logger.Debug("ignoring edit by foreign sender",
			"event_id", event.Message,
			"editor", event.Editor,
		)
		return
	}
	state, ok := m.stateForChannel(event.Channel)
	if !ok {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	if _, tracked := state.byMessage[event.Message]; !tracked {
		return
	}
	m.logger.Info("prompt content stripped, replacing",
		"guild_id", state.guild,
		"event_id", event.Message,
		"editor", event.Editor,
	)
	if !m.deleteMessage(ctx, state.channel, event.Message, "prompt content was removed") {
		// Left bound; the next resync deletes it as invalid.
		return
	}
	m.recoverPrompt(ctx, state, event.Message)
}

// recoverPrompt handles the loss of message. state.mu must be held.
func (m *Manager[D]) recoverPrompt(ctx context.Context, state *guildState, message ref.EventID) {
	partialID, tracked := state.byMessage[message]
	if !tracked {
		return
	}
	state.unbind(partialID)

	id := document.ID{Collection: m.kind, PartialID: partialID}
	doc, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Debug("deleted prompt had no document", "document_id", id)
		} else {
			m.logger.Warn("loading document for deleted prompt failed",
				"document_id", id,
				"error", err,
			)
		}
		return
	}
	if !doc.IsOpen() {
		return
	}
	if m.post(ctx, state, doc) {
		m.metrics.add(ctx, m.metrics.tamper)
		m.logger.Info("prompt replaced after deletion",
			"guild_id", state.guild,
			"document_id", id,
			"previous_event_id", message,
			"event_id", state.byDocument[partialID],
		)
	}
}

// HandleAction routes an action on a prompt to the adapter. Actions
// on untracked documents are ignored. The returned error covers store
// failures only; platform failures are logged.
func (m *Manager[D]) HandleAction(ctx context.Context, action messaging.ActionInvoked) error {
	customID, err := DecodeCustomID(action.CustomID)
	if err != nil || customID.Kind != m.kind {
		m.metrics.add(ctx, m.metrics.ignored)
		m.logger.Debug("ignoring malformed action", "custom_id", action.CustomID, "error", err)
		return nil
	}
	state, ok := m.stateForChannel(action.Channel)
	if !ok {
		m.metrics.add(ctx, m.metrics.ignored)
		return nil
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	partialID := customID.PartialID
	message, tracked := state.byDocument[partialID]
	if !tracked {
		m.metrics.add(ctx, m.metrics.ignored)
		m.logger.Debug("ignoring action on untracked document",
			"document_id", customID.DocumentID(),
			"user_id", action.User,
		)
		return nil
	}

	interaction := Interaction{
		Guild:    state.guild,
		Channel:  action.Channel,
		Message:  action.Message,
		User:     action.User,
		Document: customID.DocumentID(),
		Extra:    customID.Extra,
		At:       m.clock.Now(),
	}

	var (
		verdict Verdict[D]
		before  D
	)
	after, err := m.store.Update(ctx, interaction.Document, func(doc D) (D, error) {
		before = doc
		if !doc.IsOpen() {
			verdict = Ignore[D]("")
			return doc, store.ErrNoChange
		}
		verdict = m.adapter.Decide(interaction, doc)
		switch verdict.Kind() {
		case VerdictPersist:
			return verdict.Document(), nil
		case VerdictFinalize:
			if verdict.Document().IsOpen() {
				return doc, fmt.Errorf("prompt: %s adapter finalized %s but left it open", m.kind, interaction.Document)
			}
			return verdict.Document(), nil
		default:
			return doc, store.ErrNoChange
		}
	})
	switch {
	case errors.Is(err, store.ErrNoChange):
		m.metrics.add(ctx, m.metrics.ignored)
		if !after.IsOpen() {
			// Closed by some other path while still bound here.
			state.unbind(partialID)
			m.deleteMessage(ctx, state.channel, message, "document already closed")
			return nil
		}
		if notice := verdict.Notice(); notice != "" {
			m.respond(ctx, interaction, notice)
		}
		return nil
	case errors.Is(err, store.ErrNotFound):
		m.metrics.add(ctx, m.metrics.ignored)
		state.unbind(partialID)
		m.deleteMessage(ctx, state.channel, message, "document no longer exists")
		return nil
	case err != nil:
		return fmt.Errorf("prompt: applying action to %s: %w", interaction.Document, err)
	}

	outcome := Outcome[D]{Verdict: verdict.Kind(), Before: before, After: after}
	switch verdict.Kind() {
	case VerdictPersist:
		m.rerender(ctx, state, after, message)
		m.adapter.Apply(ctx, interaction, outcome)
	case VerdictFinalize:
		// Untrack first: any action processed from here on finds no
		// binding, whatever the platform calls below do.
		state.unbind(partialID)
		m.adapter.Apply(ctx, interaction, outcome)
		m.adapter.OnFinalize(ctx, after)
		m.deleteMessage(ctx, state.channel, message, "prompt finalized")
		m.logger.Info("document finalized",
			"guild_id", state.guild,
			"document_id", interaction.Document,
			"user_id", interaction.User,
		)
	}
	return nil
}

// Forget drops guild's bindings without touching its prompts, for a
// guild that became unavailable. The next Resync rebuilds them.
func (m *Manager[D]) Forget(guild ref.RoomID) {
	m.mu.Lock()
	state, ok := m.guilds[guild]
	delete(m.guilds, guild)
	for channel, owner := range m.channelGuild {
		if owner == guild {
			delete(m.channelGuild, channel)
		}
	}
	m.mu.Unlock()

	if ok {
		state.mu.Lock()
		state.reset(state.channel)
		state.mu.Unlock()
	}
}

// Bindings returns a snapshot of guild's document-to-prompt bindings.
func (m *Manager[D]) Bindings(guild ref.RoomID) map[document.ID]ref.EventID {
	m.mu.Lock()
	state, ok := m.guilds[guild]
	m.mu.Unlock()
	bindings := make(map[document.ID]ref.EventID)
	if !ok {
		return bindings
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	for partialID, message := range state.byDocument {
		bindings[document.ID{Collection: m.kind, PartialID: partialID}] = message
	}
	return bindings
}

// post renders and sends a prompt for doc and binds it. state.mu must
// be held.
func (m *Manager[D]) post(ctx context.Context, state *guildState, doc D) bool {
	id := doc.DocumentID()
	content := m.render(doc)
	message, err := m.platform.SendPrompt(ctx, state.channel, content)
	if err != nil {
		m.logger.Warn("posting prompt failed",
			"guild_id", state.guild,
			"document_id", id,
			"error", err,
		)
		return false
	}
	state.bind(id.PartialID, message)
	m.metrics.add(ctx, m.metrics.created)
	return true
}

// rerender updates the prompt bound to doc in place, posting a new
// one if the old message is gone. state.mu must be held.
func (m *Manager[D]) rerender(ctx context.Context, state *guildState, doc D, message ref.EventID) {
	err := m.platform.EditPrompt(ctx, state.channel, message, m.render(doc))
	if err == nil {
		return
	}
	if messaging.IsGone(err) {
		state.unbind(doc.DocumentID().PartialID)
		m.post(ctx, state, doc)
		return
	}
	m.logger.Warn("re-rendering prompt failed",
		"guild_id", state.guild,
		"document_id", doc.DocumentID(),
		"event_id", message,
		"error", err,
	)
}

func (m *Manager[D]) render(doc D) messaging.PromptContent {
	content := m.adapter.Render(doc)
	content.Token = EncodeToken(m.kind, doc.DocumentID().PartialID)
	return content
}

// deleteMessage deletes message and reports whether it is gone now.
func (m *Manager[D]) deleteMessage(ctx context.Context, channel ref.RoomID, message ref.EventID, reason string) bool {
	err := m.platform.DeleteMessage(ctx, channel, message, reason)
	if err == nil {
		m.metrics.add(ctx, m.metrics.deleted)
		return true
	}
	if messaging.IsGone(err) {
		return true
	}
	m.logger.Warn("deleting message failed",
		"channel_id", channel,
		"event_id", message,
		"error", err,
	)
	return false
}

func (m *Manager[D]) respond(ctx context.Context, in Interaction, text string) {
	if err := m.platform.Respond(ctx, in.Channel, in.User, text); err != nil {
		m.logger.Warn("responding to interaction failed",
			"document_id", in.Document,
			"user_id", in.User,
			"error", err,
		)
	}
}
