// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/store"
	"github.com/bureau-foundation/gatekeeper/lib/testutil"
	"github.com/bureau-foundation/gatekeeper/messaging"
	"github.com/bureau-foundation/gatekeeper/messaging/messagingtest"
)

var (
	guild   = ref.MustParseRoomID("!guild:example.org")
	channel = ref.MustParseRoomID("!suggestions:example.org")
	self    = ref.MustParseUserID("@gatekeeper:example.org")
	alice   = ref.MustParseUserID("@alice:example.org")
	bob     = ref.MustParseUserID("@bob:example.org")
)

var eventIDComparer = cmp.Comparer(func(a, b ref.EventID) bool { return a == b })

// suggestionAdapter is a minimal adapter: "resolve" toggles the
// resolved flag on, "close" finalizes, anything else is ignored.
type suggestionAdapter struct {
	mu        sync.Mutex
	applied   []prompt.Outcome[document.Suggestion]
	finalized []document.ID
}

func (a *suggestionAdapter) Kind() document.Kind { return document.KindSuggestion }

func (a *suggestionAdapter) Render(doc document.Suggestion) messaging.PromptContent {
	id := doc.DocumentID()
	status := "open"
	if doc.IsResolved {
		status = "resolved"
	}
	return messaging.PromptContent{
		Title:  "Suggestion",
		Body:   doc.Body,
		Fields: []messaging.Field{{Name: "Status", Value: status}},
		Controls: []messaging.Control{
			prompt.NewControl("Resolve", messaging.StyleSuccess, id, "resolve"),
			prompt.NewControl("Close", messaging.StyleDanger, id, "close"),
		},
	}
}

func (a *suggestionAdapter) Decide(in prompt.Interaction, doc document.Suggestion) prompt.Verdict[document.Suggestion] {
	if len(in.Extra) == 0 {
		return prompt.Ignore[document.Suggestion]("")
	}
	switch in.Extra[0] {
	case "resolve":
		if doc.IsResolved {
			return prompt.Ignore[document.Suggestion]("already resolved")
		}
		doc.IsResolved = true
		return prompt.Persist(doc)
	case "close":
		doc.IsClosed = true
		return prompt.Finalize(doc)
	case "broken-close":
		return prompt.Finalize(doc)
	}
	return prompt.Ignore[document.Suggestion]("")
}

func (a *suggestionAdapter) Apply(ctx context.Context, in prompt.Interaction, outcome prompt.Outcome[document.Suggestion]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, outcome)
}

func (a *suggestionAdapter) OnFinalize(ctx context.Context, doc document.Suggestion) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = append(a.finalized, doc.DocumentID())
}

func (a *suggestionAdapter) outcomes() []prompt.Outcome[document.Suggestion] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]prompt.Outcome[document.Suggestion](nil), a.applied...)
}

func (a *suggestionAdapter) finalizedIDs() []document.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]document.ID(nil), a.finalized...)
}

type fixture struct {
	platform   *messagingtest.Platform
	collection *store.Collection[document.Suggestion]
	adapter    *suggestionAdapter
	manager    *prompt.Manager[document.Suggestion]
	reader     *sdkmetric.ManualReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	f := &fixture{
		platform:   messagingtest.New(self),
		collection: store.NewCollection[document.Suggestion](store.NewMemoryBackend(), document.KindSuggestion),
		adapter:    &suggestionAdapter{},
		reader:     reader,
	}
	manager, err := prompt.NewManager(prompt.Config[document.Suggestion]{
		Adapter:  f.adapter,
		Store:    f.collection,
		Platform: f.platform,
		Channels: func(g ref.RoomID) (ref.RoomID, bool) {
			return channel, g == guild
		},
		Self:   self,
		Clock:  clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger: testutil.Logger(t),
		Meter:  provider.Meter("prompt-test"),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.manager = manager
	return f
}

func (f *fixture) create(t *testing.T, partialID, body string, closed bool) document.Suggestion {
	t.Helper()
	doc := document.Suggestion{
		Header: document.Header{
			PartialID: partialID,
			GuildID:   guild,
			AuthorID:  alice,
			CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		},
		Resolution: document.Resolution{IsClosed: closed},
		Body:       body,
	}
	if err := f.collection.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create %s: %v", partialID, err)
	}
	return doc
}

// seedPrompt places a prompt for partialID in the channel as if an
// earlier process had posted it.
func (f *fixture) seedPrompt(sender ref.UserID, partialID string) ref.EventID {
	return f.platform.Seed(channel, sender, messaging.PromptContent{
		Title: "Suggestion",
		Body:  "seeded",
		Token: prompt.EncodeToken(document.KindSuggestion, partialID),
	})
}

func (f *fixture) resync(t *testing.T) {
	t.Helper()
	if err := f.manager.Resync(context.Background(), guild); err != nil {
		t.Fatalf("Resync: %v", err)
	}
}

func (f *fixture) action(t *testing.T, doc document.Suggestion, user ref.UserID, extra ...string) {
	t.Helper()
	id := doc.DocumentID()
	customID, err := prompt.EncodeCustomID(id.Collection, id.PartialID, extra...)
	if err != nil {
		t.Fatalf("EncodeCustomID: %v", err)
	}
	f.actionRaw(t, user, customID)
}

func (f *fixture) actionRaw(t *testing.T, user ref.UserID, customID string) {
	t.Helper()
	err := f.manager.HandleAction(context.Background(), messaging.ActionInvoked{
		Channel:  channel,
		User:     user,
		CustomID: customID,
	})
	if err != nil {
		t.Fatalf("HandleAction(%q): %v", customID, err)
	}
}

func (f *fixture) binding(t *testing.T, doc document.Suggestion) (ref.EventID, bool) {
	t.Helper()
	message, ok := f.manager.Bindings(guild)[doc.DocumentID()]
	return message, ok
}

// livePromptsFor counts live intact messages in the channel carrying
// doc's token.
func (f *fixture) livePromptsFor(doc document.Suggestion) int {
	token := prompt.EncodeToken(document.KindSuggestion, doc.PartialID)
	count := 0
	for _, message := range f.platform.Live(channel) {
		if message.Content.Token == token && message.Intact {
			count++
		}
	}
	return count
}

func (f *fixture) counter(t *testing.T, name string) int64 {
	t.Helper()
	var data metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &data); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, scope := range data.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has data %T", name, m.Data)
			}
			var total int64
			for _, point := range sum.DataPoints {
				total += point.Value
			}
			return total
		}
	}
	return 0
}

func TestResyncAdoptsPostsAndDeletes(t *testing.T) {
	f := newFixture(t)
	adoptable := f.create(t, "adopt", "keep me", false)
	promptless := f.create(t, "fresh", "needs a prompt", false)
	closed := f.create(t, "closed", "done", true)

	adoptedMessage := f.seedPrompt(self, adoptable.PartialID)
	orphan := f.seedPrompt(self, "vanished")
	closedPrompt := f.seedPrompt(self, closed.PartialID)
	foreign := f.platform.Seed(channel, alice, messaging.PromptContent{Body: "hello"})
	lookalike := f.seedPrompt(alice, promptless.PartialID)
	wrongKind := f.platform.Seed(channel, self, messaging.PromptContent{
		Body:  "ticket",
		Token: prompt.EncodeToken(document.KindTicket, adoptable.PartialID),
	})

	f.resync(t)

	bindings := f.manager.Bindings(guild)
	if len(bindings) != 2 {
		t.Fatalf("bindings = %v, want 2 entries", bindings)
	}
	if bindings[adoptable.DocumentID()] != adoptedMessage {
		t.Errorf("adoptable bound to %s, want seeded %s", bindings[adoptable.DocumentID()], adoptedMessage)
	}
	fresh, ok := bindings[promptless.DocumentID()]
	if !ok || fresh == lookalike {
		t.Errorf("promptless document bound to %s (lookalike %s)", fresh, lookalike)
	}

	deleted := make(map[ref.EventID]bool)
	for _, id := range f.platform.Deletes() {
		deleted[id] = true
	}
	for name, id := range map[string]ref.EventID{
		"orphan":        orphan,
		"closed prompt": closedPrompt,
		"foreign":       foreign,
		"lookalike":     lookalike,
		"wrong kind":    wrongKind,
	} {
		if !deleted[id] {
			t.Errorf("%s message %s was not deleted", name, id)
		}
	}
	if deleted[adoptedMessage] {
		t.Error("adopted prompt was deleted")
	}

	live := f.platform.Live(channel)
	if len(live) != 2 {
		t.Errorf("channel has %d live messages, want 2", len(live))
	}
	if got := f.counter(t, prompt.MetricPromptsCreated); got != 1 {
		t.Errorf("created counter = %d, want 1", got)
	}
	if got := f.counter(t, prompt.MetricPromptsDeleted); got != 5 {
		t.Errorf("deleted counter = %d, want 5", got)
	}
}

func TestResyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.create(t, "one", "first", false)
	f.create(t, "two", "second", false)
	f.seedPrompt(self, "one")
	f.platform.Seed(channel, bob, messaging.PromptContent{Body: "chatter"})

	f.resync(t)
	first := f.manager.Bindings(guild)
	sends := len(f.platform.Live(channel))
	deletes := len(f.platform.Deletes())

	f.resync(t)
	second := f.manager.Bindings(guild)

	if diff := cmp.Diff(first, second, eventIDComparer); diff != "" {
		t.Errorf("bindings changed on second resync (-first +second):\n%s", diff)
	}
	if got := len(f.platform.Live(channel)); got != sends {
		t.Errorf("live messages %d after second resync, want %d", got, sends)
	}
	if got := len(f.platform.Deletes()); got != deletes {
		t.Errorf("second resync issued %d deletes", got-deletes)
	}
}

func TestResyncKeepsNewestDuplicate(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "dup", "duplicate", false)
	older := f.seedPrompt(self, doc.PartialID)
	newer := f.seedPrompt(self, doc.PartialID)

	f.resync(t)

	message, ok := f.binding(t, doc)
	if !ok || message != newer {
		t.Fatalf("bound to %s, want newest %s", message, newer)
	}
	if got, _ := f.platform.Message(older); !got.Deleted {
		t.Error("older duplicate was not deleted")
	}
	if n := f.livePromptsFor(doc); n != 1 {
		t.Errorf("%d live prompts for document, want 1", n)
	}
}

func TestResyncDeletesStrippedPrompt(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "stripped", "body", false)
	stripped := f.seedPrompt(self, doc.PartialID)
	f.platform.TamperEdit(stripped, self)

	f.resync(t)

	message, ok := f.binding(t, doc)
	if !ok || message == stripped {
		t.Fatalf("bound to %s, want a fresh prompt", message)
	}
	if got, _ := f.platform.Message(stripped); !got.Deleted {
		t.Error("stripped prompt was not deleted")
	}
}

func TestResyncAdoptsPromptWithForeignStrippingEdit(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "foreign", "body", false)
	prompted := f.seedPrompt(self, doc.PartialID)
	f.platform.TamperEdit(prompted, bob)

	f.resync(t)

	if message, ok := f.binding(t, doc); !ok || message != prompted {
		t.Fatalf("bound to %s, want the existing prompt %s", message, prompted)
	}
	if got, _ := f.platform.Message(prompted); got.Deleted {
		t.Error("prompt deleted over an edit clients never apply")
	}
	for _, message := range f.platform.Live(channel) {
		if message.ID != prompted {
			t.Errorf("stray message %s from %s survived resync", message.ID, message.Sender)
		}
	}
}

func TestResyncSendFailureLeavesDocumentPromptless(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "later", "body", false)

	f.platform.Fail(messagingtest.OpSendPrompt, errors.New("homeserver unavailable"))
	f.resync(t)
	if _, ok := f.binding(t, doc); ok {
		t.Fatal("document bound despite failed send")
	}

	f.platform.Fail(messagingtest.OpSendPrompt, nil)
	f.resync(t)
	if _, ok := f.binding(t, doc); !ok {
		t.Fatal("document not bound after recovery resync")
	}
}

func TestResyncHistoryFailureReturnsError(t *testing.T) {
	f := newFixture(t)
	f.platform.Fail(messagingtest.OpChannelHistory, errors.New("timeout"))
	if err := f.manager.Resync(context.Background(), guild); err == nil {
		t.Fatal("expected error when history cannot be fetched")
	}
}

func TestResyncUnconfiguredGuild(t *testing.T) {
	f := newFixture(t)
	if err := f.manager.Resync(context.Background(), ref.MustParseRoomID("!other:example.org")); err != nil {
		t.Fatalf("Resync: %v", err)
	}
}

func TestDeletedPromptIsReplaced(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "tamper", "body", false)
	f.resync(t)
	original, _ := f.binding(t, doc)

	f.manager.HandleDeleted(context.Background(), f.platform.UserDelete(original))

	replacement, ok := f.binding(t, doc)
	if !ok || replacement == original {
		t.Fatalf("binding after deletion = %s (original %s)", replacement, original)
	}
	if n := f.livePromptsFor(doc); n != 1 {
		t.Errorf("%d live prompts, want exactly 1", n)
	}
	if len(f.manager.Bindings(guild)) != 1 {
		t.Errorf("bindings = %v, want one entry", f.manager.Bindings(guild))
	}
	if got := f.counter(t, prompt.MetricTamperRecoveries); got != 1 {
		t.Errorf("tamper counter = %d, want 1", got)
	}

	// A second deletion event for the old message changes nothing.
	f.manager.HandleDeleted(context.Background(), messaging.MessageDeleted{Channel: channel, Message: original})
	if now, _ := f.binding(t, doc); now != replacement {
		t.Errorf("binding moved to %s on repeated deletion", now)
	}
}

func TestStrippingEditMatchesDeletion(t *testing.T) {
	edited := newFixture(t)
	deleted := newFixture(t)
	for _, f := range []*fixture{edited, deleted} {
		f.create(t, "target", "body", false)
		f.resync(t)
	}
	doc := document.Suggestion{Header: document.Header{PartialID: "target"}}

	editedOriginal, _ := edited.binding(t, doc)
	edited.manager.HandleEdited(context.Background(), edited.platform.TamperEdit(editedOriginal, self))

	deletedOriginal, _ := deleted.binding(t, doc)
	deleted.manager.HandleDeleted(context.Background(), deleted.platform.UserDelete(deletedOriginal))

	if got, _ := edited.platform.Message(editedOriginal); !got.Deleted {
		t.Error("stripped prompt was not force-deleted")
	}
	for name, f := range map[string]*fixture{"edit": edited, "delete": deleted} {
		if n := f.livePromptsFor(doc); n != 1 {
			t.Errorf("%s: %d live prompts, want 1", name, n)
		}
		if len(f.manager.Bindings(guild)) != 1 {
			t.Errorf("%s: bindings = %v", name, f.manager.Bindings(guild))
		}
	}

	// The platform's deletion echo for the force-deleted message is a no-op.
	before, _ := edited.binding(t, doc)
	edited.manager.HandleDeleted(context.Background(), messaging.MessageDeleted{Channel: channel, Message: editedOriginal})
	if after, _ := edited.binding(t, doc); after != before {
		t.Errorf("deletion echo rebound prompt: %s -> %s", before, after)
	}
	if n := edited.livePromptsFor(doc); n != 1 {
		t.Errorf("after echo: %d live prompts, want 1", n)
	}
}

func TestForeignStrippingEditIsIgnored(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "foreign", "body", false)
	f.resync(t)
	original, _ := f.binding(t, doc)

	for range 3 {
		f.manager.HandleEdited(context.Background(), f.platform.TamperEdit(original, bob))
	}

	if now, _ := f.binding(t, doc); now != original {
		t.Fatalf("binding moved %s -> %s on a foreign edit", original, now)
	}
	if got, _ := f.platform.Message(original); got.Deleted || !got.Intact {
		t.Errorf("prompt after foreign edit: deleted=%v intact=%v", got.Deleted, got.Intact)
	}
	if n := f.livePromptsFor(doc); n != 1 {
		t.Errorf("%d live prompts, want 1", n)
	}
	if got := f.counter(t, prompt.MetricTamperRecoveries); got != 0 {
		t.Errorf("tamper counter = %d, want 0", got)
	}
}

func TestIntactEditIsIgnored(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "intact", "body", false)
	f.resync(t)
	message, _ := f.binding(t, doc)

	f.manager.HandleEdited(context.Background(), messaging.MessageEdited{Channel: channel, Message: message, Editor: bob, Intact: true})

	if now, _ := f.binding(t, doc); now != message {
		t.Errorf("binding changed on intact edit")
	}
	if len(f.platform.Deletes()) != 0 {
		t.Errorf("intact edit caused deletes: %v", f.platform.Deletes())
	}
}

func TestDeletedPromptOfClosedDocumentIsNotReplaced(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "closing", "body", false)
	f.resync(t)
	message, _ := f.binding(t, doc)

	if _, err := f.collection.Update(context.Background(), doc.DocumentID(), func(d document.Suggestion) (document.Suggestion, error) {
		d.IsClosed = true
		return d, nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	f.manager.HandleDeleted(context.Background(), f.platform.UserDelete(message))

	if _, ok := f.binding(t, doc); ok {
		t.Error("closed document still bound")
	}
	if n := f.livePromptsFor(doc); n != 0 {
		t.Errorf("%d live prompts for closed document", n)
	}
}

func TestActionPersistRerenders(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "persist", "body", false)
	f.resync(t)
	message, _ := f.binding(t, doc)

	f.action(t, doc, bob, "resolve")

	stored, err := f.collection.Get(context.Background(), doc.DocumentID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsResolved {
		t.Error("document not resolved")
	}
	rendered, _ := f.platform.Message(message)
	if rendered.Edits != 1 || rendered.Content.Fields[0].Value != "resolved" {
		t.Errorf("prompt not re-rendered: edits=%d fields=%v", rendered.Edits, rendered.Content.Fields)
	}
	if rendered.Content.Token != prompt.EncodeToken(document.KindSuggestion, doc.PartialID) {
		t.Errorf("re-rendered prompt lost its token: %q", rendered.Content.Token)
	}

	outcomes := f.adapter.outcomes()
	if len(outcomes) != 1 || outcomes[0].Verdict != prompt.VerdictPersist {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].Before.IsResolved || !outcomes[0].After.IsResolved {
		t.Errorf("outcome before/after = %v/%v", outcomes[0].Before.IsResolved, outcomes[0].After.IsResolved)
	}
}

func TestActionPersistRepostsWhenPromptGone(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "gone", "body", false)
	f.resync(t)
	message, _ := f.binding(t, doc)
	f.platform.UserDelete(message) // deletion event not delivered yet

	f.action(t, doc, bob, "resolve")

	replacement, ok := f.binding(t, doc)
	if !ok || replacement == message {
		t.Fatalf("binding = %s, want a replacement for %s", replacement, message)
	}
	if n := f.livePromptsFor(doc); n != 1 {
		t.Errorf("%d live prompts, want 1", n)
	}
}

func TestActionIgnoreSendsNotice(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "twice", "body", false)
	f.resync(t)

	f.action(t, doc, bob, "resolve")
	f.action(t, doc, bob, "resolve")

	responses := f.platform.Responses()
	if len(responses) != 1 || responses[0].Text != "already resolved" || responses[0].User != bob {
		t.Fatalf("responses = %+v", responses)
	}
	if got := len(f.adapter.outcomes()); got != 1 {
		t.Errorf("Apply called %d times, want 1", got)
	}
	if got := f.counter(t, prompt.MetricIgnoredInteractions); got != 1 {
		t.Errorf("ignored counter = %d, want 1", got)
	}
}

func TestActionFinalizeUntracksAndDeletes(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "final", "body", false)
	f.resync(t)
	message, _ := f.binding(t, doc)

	f.action(t, doc, bob, "close")

	if _, ok := f.binding(t, doc); ok {
		t.Error("finalized document still bound")
	}
	if got, _ := f.platform.Message(message); !got.Deleted {
		t.Error("prompt not deleted")
	}
	stored, err := f.collection.Get(context.Background(), doc.DocumentID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsClosed {
		t.Error("document not closed in store")
	}
	if diff := cmp.Diff([]document.ID{doc.DocumentID()}, f.adapter.finalizedIDs()); diff != "" {
		t.Errorf("OnFinalize calls (-want +got):\n%s", diff)
	}

	// The stale button is now a no-op.
	f.action(t, doc, alice, "close")
	f.action(t, doc, alice, "resolve")
	if got := len(f.adapter.finalizedIDs()); got != 1 {
		t.Errorf("OnFinalize called %d times, want 1", got)
	}
	if got := len(f.adapter.outcomes()); got != 1 {
		t.Errorf("Apply called %d times, want 1", got)
	}
}

func TestFinalizeUntracksEvenWhenDeleteFails(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "sticky", "body", false)
	f.resync(t)

	f.platform.Fail(messagingtest.OpDeleteMessage, errors.New("forbidden"))
	f.action(t, doc, bob, "close")
	f.action(t, doc, bob, "close")

	if _, ok := f.binding(t, doc); ok {
		t.Error("finalized document still bound")
	}
	if got := len(f.adapter.finalizedIDs()); got != 1 {
		t.Errorf("OnFinalize called %d times, want 1", got)
	}

	// The leftover prompt is cleaned up by the next resync.
	f.platform.Fail(messagingtest.OpDeleteMessage, nil)
	f.resync(t)
	if n := f.livePromptsFor(doc); n != 0 {
		t.Errorf("%d live prompts after resync, want 0", n)
	}
}

func TestFinalizeThatLeavesDocumentOpenFails(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "broken", "body", false)
	f.resync(t)

	id := doc.DocumentID()
	customID, _ := prompt.EncodeCustomID(id.Collection, id.PartialID, "broken-close")
	err := f.manager.HandleAction(context.Background(), messaging.ActionInvoked{Channel: channel, User: bob, CustomID: customID})
	if err == nil {
		t.Fatal("expected error from finalize that leaves the document open")
	}
	if _, ok := f.binding(t, doc); !ok {
		t.Error("document untracked after rejected finalize")
	}
}

func TestConcurrentFinalizeRunsSideEffectsOnce(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "race", "body", false)
	f.resync(t)

	var wg sync.WaitGroup
	for _, user := range []ref.UserID{alice, bob, alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := doc.DocumentID()
			customID, _ := prompt.EncodeCustomID(id.Collection, id.PartialID, "close")
			if err := f.manager.HandleAction(context.Background(), messaging.ActionInvoked{Channel: channel, User: user, CustomID: customID}); err != nil {
				t.Errorf("HandleAction: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(f.adapter.finalizedIDs()); got != 1 {
		t.Errorf("OnFinalize called %d times, want 1", got)
	}
	if got := len(f.adapter.outcomes()); got != 1 {
		t.Errorf("Apply called %d times, want 1", got)
	}
}

func TestActionsThatResolveToNothingAreIgnored(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "real", "body", false)
	f.resync(t)

	f.actionRaw(t, bob, "not a custom id")
	f.actionRaw(t, bob, "tickets|real|close")
	f.actionRaw(t, bob, "suggestions|unknown|close")

	err := f.manager.HandleAction(context.Background(), messaging.ActionInvoked{
		Channel:  ref.MustParseRoomID("!elsewhere:example.org"),
		User:     bob,
		CustomID: "suggestions|real|close",
	})
	if err != nil {
		t.Fatalf("HandleAction: %v", err)
	}

	if _, ok := f.binding(t, doc); !ok {
		t.Error("document lost its binding")
	}
	if got := len(f.adapter.outcomes()); got != 0 {
		t.Errorf("Apply called %d times for ignored actions", got)
	}
	if got := f.counter(t, prompt.MetricIgnoredInteractions); got != 4 {
		t.Errorf("ignored counter = %d, want 4", got)
	}
}

func TestActionOnDocumentClosedElsewhereCleansUp(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "elsewhere", "body", false)
	f.resync(t)
	message, _ := f.binding(t, doc)

	if _, err := f.collection.Update(context.Background(), doc.DocumentID(), func(d document.Suggestion) (document.Suggestion, error) {
		d.IsClosed = true
		return d, nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	f.action(t, doc, bob, "resolve")

	if _, ok := f.binding(t, doc); ok {
		t.Error("binding kept for closed document")
	}
	if got, _ := f.platform.Message(message); !got.Deleted {
		t.Error("prompt of closed document not deleted")
	}
	if got := len(f.adapter.finalizedIDs()); got != 0 {
		t.Errorf("OnFinalize ran for a document closed elsewhere")
	}
}

func TestOpenPostsOncePerDocument(t *testing.T) {
	f := newFixture(t)
	f.resync(t)
	doc := f.create(t, "new", "body", false)

	for range 2 {
		if err := f.manager.Open(context.Background(), doc); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}
	if n := f.livePromptsFor(doc); n != 1 {
		t.Errorf("%d live prompts, want 1", n)
	}

	other := doc
	other.GuildID = ref.MustParseRoomID("!other:example.org")
	if err := f.manager.Open(context.Background(), other); !errors.Is(err, prompt.ErrNoChannel) {
		t.Errorf("Open in unconfigured guild: err = %v, want ErrNoChannel", err)
	}
}

func TestForgetDropsBindingsAndKeepsPrompts(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "kept", "body", false)
	f.resync(t)
	message, _ := f.binding(t, doc)

	f.manager.Forget(guild)

	if len(f.manager.Bindings(guild)) != 0 {
		t.Error("bindings survived Forget")
	}
	if got, _ := f.platform.Message(message); got.Deleted {
		t.Error("Forget deleted the prompt")
	}
	// Events for the forgotten guild are ignored.
	f.manager.HandleDeleted(context.Background(), f.platform.UserDelete(message))
	if n := f.livePromptsFor(doc); n != 0 {
		t.Errorf("prompt reposted for forgotten guild")
	}

	f.resync(t)
	if _, ok := f.binding(t, doc); !ok {
		t.Error("document not rebound after resync")
	}
}
