// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/moderation"
	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/lib/store"
	"github.com/bureau-foundation/gatekeeper/lib/testutil"
	"github.com/bureau-foundation/gatekeeper/lib/verification"
	"github.com/bureau-foundation/gatekeeper/messaging"
	"github.com/bureau-foundation/gatekeeper/messaging/messagingtest"
)

var (
	self        = ref.MustParseUserID("@gatekeeper:example.org")
	space       = ref.MustParseRoomID("!space:example.org")
	entryRoom   = ref.MustParseRoomID("!entry:example.org")
	ticketRoom  = ref.MustParseRoomID("!tickets:example.org")
	ideasRoom   = ref.MustParseRoomID("!ideas:example.org")
	journalRoom = ref.MustParseRoomID("!journal:example.org")
	membersRoom = ref.MustParseRoomID("!members:example.org")
	unmanaged   = ref.MustParseRoomID("!elsewhere:example.org")
	newcomer    = ref.MustParseUserID("@newcomer:example.org")
	alice       = ref.MustParseUserID("@alice:example.org")
	bob         = ref.MustParseUserID("@bob:example.org")
	startTime   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	platform  *messagingtest.Platform
	backend   *store.MemoryBackend
	directory *config.Directory
	service   *gatekeeper
	metrics   *sdkmetric.ManualReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Quorum = config.QuorumConfig{Policy: config.PolicyStatic, Accept: 2, Reject: 2}
	cfg.Guilds = []config.GuildConfig{{
		Space: space.String(),
		Channels: map[string]string{
			string(document.KindEntryRequest): entryRoom.String(),
			string(document.KindTicket):       ticketRoom.String(),
			string(document.KindSuggestion):   ideasRoom.String(),
		},
		EntryRole: membersRoom.String(),
		Journal:   journalRoom.String(),
	}}
	directory, err := cfg.Directory()
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	platform := messagingtest.New(self)
	backend := store.NewMemoryBackend()
	service, err := newGatekeeper(gatekeeperConfig{
		Directory: directory,
		Backend:   backend,
		Platform:  platform,
		Policy:    quorumPolicy(cfg.Quorum, directory),
		Self:      self,
		Clock:     clock.Fake(startTime),
		Meter:     provider.Meter(meterName),
		Logger:    testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("newGatekeeper: %v", err)
	}
	return &fixture{platform: platform, backend: backend, directory: directory, service: service, metrics: reader}
}

func (f *fixture) startup(t *testing.T) {
	t.Helper()
	f.service.start(context.Background(), []messaging.PlatformEvent{
		messaging.GuildAvailable{Room: space},
		messaging.GuildAvailable{Room: unmanaged},
	})
}

func (f *fixture) submit(channel ref.RoomID, user ref.UserID, kind document.Kind, fields map[string]string) {
	f.service.handle(context.Background(), messaging.SubmissionReceived{
		Channel: channel,
		User:    user,
		Kind:    string(kind),
		Fields:  fields,
	})
}

func (f *fixture) press(t *testing.T, channel ref.RoomID, user ref.UserID, id document.ID, extra string) {
	t.Helper()
	customID, err := prompt.EncodeCustomID(id.Collection, id.PartialID, extra)
	if err != nil {
		t.Fatalf("EncodeCustomID: %v", err)
	}
	f.service.handle(context.Background(), messaging.ActionInvoked{
		Channel:  channel,
		User:     user,
		CustomID: customID,
	})
}

func (f *fixture) lastResponse(t *testing.T) messagingtest.Response {
	t.Helper()
	responses := f.platform.Responses()
	if len(responses) == 0 {
		t.Fatal("no responses sent")
	}
	return responses[len(responses)-1]
}

func TestStartupPostsPromptsForStoredDocuments(t *testing.T) {
	f := newFixture(t)
	suggestions := store.NewCollection[document.Suggestion](f.backend, document.KindSuggestion)
	suggestion := document.Suggestion{
		Header: document.Header{
			PartialID: document.NewPartialID(),
			GuildID:   space,
			AuthorID:  alice,
			CreatedAt: startTime,
		},
		Body: "a seed library shelf",
	}
	if err := suggestions.Create(context.Background(), suggestion); err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.startup(t)

	live := f.platform.Live(ideasRoom)
	if len(live) != 1 {
		t.Fatalf("live prompts in suggestions room = %d, want 1", len(live))
	}
	if want := prompt.EncodeToken(document.KindSuggestion, suggestion.PartialID); live[0].Content.Token != want {
		t.Errorf("token = %q, want %q", live[0].Content.Token, want)
	}
	for _, room := range []ref.RoomID{entryRoom, ticketRoom} {
		if live := f.platform.Live(room); len(live) != 0 {
			t.Errorf("room %s has %d messages, want none", room, len(live))
		}
	}
}

func TestEntryRequestAcceptedThroughEvents(t *testing.T) {
	f := newFixture(t)
	f.startup(t)

	f.submit(entryRoom, newcomer, document.KindEntryRequest, map[string]string{
		"2. Favourite plant": "moss",
		"1. Why join?":       "gardening",
	})
	if response := f.lastResponse(t); response.User != newcomer || !strings.HasPrefix(response.Text, "Thanks") {
		t.Fatalf("response = %+v", response)
	}
	if live := f.platform.Live(entryRoom); len(live) != 1 {
		t.Fatalf("entry prompts = %d, want 1", len(live))
	}

	req, err := f.service.verification.Lookup(context.Background(), space, newcomer)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	wantAnswers := []document.Answer{
		{Question: "1. Why join?", Answer: "gardening"},
		{Question: "2. Favourite plant", Answer: "moss"},
	}
	if diff := cmp.Diff(wantAnswers, req.Answers); diff != "" {
		t.Errorf("answers (-want +got):\n%s", diff)
	}

	f.press(t, entryRoom, alice, req.DocumentID(), verification.ExtraAccept)
	f.press(t, entryRoom, bob, req.DocumentID(), verification.ExtraAccept)

	want := []messagingtest.Grant{{Guild: space, Role: membersRoom, User: newcomer}}
	if grants := f.platform.Grants(); !slices.Equal(grants, want) {
		t.Errorf("grants = %+v, want %+v", grants, want)
	}
	if live := f.platform.Live(entryRoom); len(live) != 0 {
		t.Errorf("entry prompts after decision = %d, want 0", len(live))
	}

	var journaled bool
	for _, notice := range f.platform.Notices() {
		if notice.Channel == journalRoom {
			journaled = true
		}
	}
	if !journaled {
		t.Error("decision was not posted to the journal room")
	}

	f.submit(entryRoom, newcomer, document.KindEntryRequest, map[string]string{"1. Why join?": "again"})
	if response := f.lastResponse(t); !strings.Contains(response.Text, "already been decided") {
		t.Errorf("resubmission response = %q", response.Text)
	}
}

func TestDuplicateEntryRequestRefused(t *testing.T) {
	f := newFixture(t)
	f.startup(t)

	f.submit(entryRoom, newcomer, document.KindEntryRequest, map[string]string{"q": "a"})
	f.submit(entryRoom, newcomer, document.KindEntryRequest, map[string]string{"q": "b"})
	if response := f.lastResponse(t); !strings.Contains(response.Text, "already have") {
		t.Errorf("duplicate response = %q", response.Text)
	}
	if live := f.platform.Live(entryRoom); len(live) != 1 {
		t.Errorf("entry prompts = %d, want 1", len(live))
	}
}

func TestSubmissionRefusals(t *testing.T) {
	tests := []struct {
		name   string
		kind   document.Kind
		fields map[string]string
		want   string
	}{
		{"disabled kind", document.KindReport, map[string]string{"reason": "spam"}, "does not accept"},
		{"empty suggestion", document.KindSuggestion, map[string]string{"body": "  "}, "needs some text"},
		{"unknown form", document.Kind("polls"), nil, "unknown form"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			f.startup(t)
			f.submit(ideasRoom, alice, test.kind, test.fields)
			if response := f.lastResponse(t); !strings.Contains(response.Text, test.want) {
				t.Errorf("response = %q, want it to contain %q", response.Text, test.want)
			}
			if live := f.platform.Live(ideasRoom); len(live) != 0 {
				t.Errorf("prompts posted for a refused submission: %d", len(live))
			}
		})
	}
}

func TestSubmissionOutsideManagedRoomsIgnored(t *testing.T) {
	f := newFixture(t)
	f.startup(t)
	f.submit(unmanaged, alice, document.KindSuggestion, map[string]string{"body": "hello"})
	if responses := f.platform.Responses(); len(responses) != 0 {
		t.Errorf("responses = %+v, want none", responses)
	}
}

func TestTicketLifecycleThroughEvents(t *testing.T) {
	f := newFixture(t)
	f.startup(t)

	f.submit(ticketRoom, alice, document.KindTicket, map[string]string{"topic": "cannot post images"})
	live := f.platform.Live(ticketRoom)
	if len(live) != 1 {
		t.Fatalf("ticket prompts = %d, want 1", len(live))
	}
	created := f.platform.CreatedChannels()
	if len(created) != 1 {
		t.Fatalf("created rooms = %d, want 1", len(created))
	}

	// A member deleting the prompt gets it replaced.
	f.service.handle(context.Background(), f.platform.UserDelete(live[0].ID))
	replaced := f.platform.Live(ticketRoom)
	if len(replaced) != 1 || replaced[0].ID == live[0].ID {
		t.Fatalf("prompt not replaced after deletion: %+v", replaced)
	}

	partialID, ok := prompt.DecodeToken(document.KindTicket, replaced[0].Content.Token)
	if !ok {
		t.Fatalf("prompt token %q does not decode", replaced[0].Content.Token)
	}
	f.press(t, ticketRoom, bob, document.ID{Collection: document.KindTicket, PartialID: partialID}, moderation.ExtraClose)

	if live := f.platform.Live(ticketRoom); len(live) != 0 {
		t.Errorf("ticket prompts after close = %d, want 0", len(live))
	}
	if closed := f.platform.ClosedChannels(); len(closed) != 1 || closed[0] != created[0] {
		t.Errorf("closed rooms = %v, want %v", closed, created)
	}
}

func TestGuildUnavailableDropsBindings(t *testing.T) {
	f := newFixture(t)
	f.startup(t)
	f.submit(ideasRoom, alice, document.KindSuggestion, map[string]string{"body": "compost bins"})
	live := f.platform.Live(ideasRoom)
	if len(live) != 1 {
		t.Fatalf("suggestion prompts = %d, want 1", len(live))
	}

	f.service.handle(context.Background(), messaging.GuildUnavailable{Room: space})
	f.service.handle(context.Background(), f.platform.UserDelete(live[0].ID))
	if live := f.platform.Live(ideasRoom); len(live) != 0 {
		t.Fatalf("prompt reposted while the guild was unavailable")
	}

	// Rejoining resyncs the guild and posts the prompt again.
	f.service.handle(context.Background(), messaging.GuildAvailable{Room: space})
	if live := f.platform.Live(ideasRoom); len(live) != 1 {
		t.Errorf("suggestion prompts after rejoin = %d, want 1", len(live))
	}
}

func TestQuorumPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Guilds = []config.GuildConfig{{Space: space.String(), Voters: 10}}
	cfg.Quorum = config.QuorumConfig{Policy: config.PolicyProportional, AcceptRatio: 0.25, RejectRatio: 0.5}
	directory, err := cfg.Directory()
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}

	accept, reject := quorumPolicy(cfg.Quorum, directory).Quorum(space)
	if accept != 3 || reject != 5 {
		t.Errorf("proportional quorum = %d/%d, want 3/5", accept, reject)
	}

	accept, reject = quorumPolicy(config.QuorumConfig{Policy: config.PolicyStatic, Accept: 4, Reject: 2}, directory).Quorum(space)
	if accept != 4 || reject != 2 {
		t.Errorf("static quorum = %d/%d, want 4/2", accept, reject)
	}
}

func TestUserList(t *testing.T) {
	users, err := userList("@alice:example.org, @bob:example.org\n@carol:example.org")
	if err != nil {
		t.Fatalf("userList: %v", err)
	}
	var got []string
	for _, user := range users {
		got = append(got, user.String())
	}
	want := []string{"@alice:example.org", "@bob:example.org", "@carol:example.org"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("users (-want +got):\n%s", diff)
	}

	if _, err := userList("alice"); err == nil {
		t.Error("userList accepted a bare name")
	}
	if users, err := userList(""); err != nil || len(users) != 0 {
		t.Errorf("userList(\"\") = %v, %v", users, err)
	}
}
