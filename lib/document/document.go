// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"slices"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Document is implemented by every document type.
type Document interface {
	// DocumentID returns the document's identifier.
	DocumentID() ID

	// Guild returns the space room the document belongs to.
	Guild() ref.RoomID

	// Author returns the user who submitted the document.
	Author() ref.UserID

	// IsOpen reports whether the document still needs a live prompt.
	IsOpen() bool
}

// Header holds the fields common to every document.
type Header struct {
	PartialID string     `json:"partial_id"`
	GuildID   ref.RoomID `json:"guild_id"`
	AuthorID  ref.UserID `json:"author_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// Guild implements Document.
func (h Header) Guild() ref.RoomID { return h.GuildID }

// Author implements Document.
func (h Header) Author() ref.UserID { return h.AuthorID }

// Resolution is the state shared by the resolvable kinds (tickets,
// suggestions, reports, resources). A resolved document keeps its
// prompt; a closed one does not.
type Resolution struct {
	IsResolved bool `json:"is_resolved"`
	IsClosed   bool `json:"is_closed"`
}

// EntryRequest is a request by a new member to be granted the guild's
// entry role. Moderators vote on it through its prompt.
//
// A voter appears in at most one of VotedFor and VotedAgainst. Once
// IsFinalised is set the vote sets no longer change and Decision holds
// the terminal state.
type EntryRequest struct {
	Header
	RequestedRoleID ref.RoomID   `json:"requested_role_id"`
	Answers         []Answer     `json:"answers,omitempty"`
	VotedFor        []ref.UserID `json:"voted_for,omitempty"`
	VotedAgainst    []ref.UserID `json:"voted_against,omitempty"`
	IsFinalised     bool         `json:"is_finalised"`
	Decision        Decision     `json:"decision,omitempty"`
}

// Decision is the terminal state of an entry request.
type Decision string

const (
	DecisionPending  Decision = ""
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Answer is one question/answer pair from the entry questionnaire.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (e EntryRequest) DocumentID() ID {
	return ID{Collection: KindEntryRequest, PartialID: e.PartialID}
}

func (e EntryRequest) IsOpen() bool { return !e.IsFinalised }

// Clone returns a copy whose slices do not alias e's.
func (e EntryRequest) Clone() EntryRequest {
	e.Answers = slices.Clone(e.Answers)
	e.VotedFor = slices.Clone(e.VotedFor)
	e.VotedAgainst = slices.Clone(e.VotedAgainst)
	return e
}

// Ticket is a private support conversation held in its own room.
type Ticket struct {
	Header
	Resolution
	Topic     string     `json:"topic"`
	ChannelID ref.RoomID `json:"channel_id"`
}

func (t Ticket) DocumentID() ID { return ID{Collection: KindTicket, PartialID: t.PartialID} }

func (t Ticket) IsOpen() bool { return !t.IsClosed }

// Status returns the resolution state.
func (t Ticket) Status() Resolution { return t.Resolution }

// WithStatus returns a copy with the resolution state replaced.
func (t Ticket) WithStatus(status Resolution) Ticket {
	t.Resolution = status
	return t
}

// Suggestion is a member's proposal for the guild.
type Suggestion struct {
	Header
	Resolution
	Body string `json:"body"`
}

func (s Suggestion) DocumentID() ID { return ID{Collection: KindSuggestion, PartialID: s.PartialID} }

func (s Suggestion) IsOpen() bool { return !s.IsClosed }

func (s Suggestion) Status() Resolution { return s.Resolution }

func (s Suggestion) WithStatus(status Resolution) Suggestion {
	s.Resolution = status
	return s
}

// Report is a member's report about other users' behaviour.
type Report struct {
	Header
	Resolution
	Reason      string       `json:"reason"`
	Reported    []ref.UserID `json:"reported,omitempty"`
	MessageLink string       `json:"message_link,omitempty"`
}

func (r Report) DocumentID() ID { return ID{Collection: KindReport, PartialID: r.PartialID} }

func (r Report) IsOpen() bool { return !r.IsClosed }

func (r Report) Status() Resolution { return r.Resolution }

func (r Report) WithStatus(status Resolution) Report {
	r.Resolution = status
	return r
}

// Resource is a link a member submits for the guild's resource list.
type Resource struct {
	Header
	Resolution
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

func (r Resource) DocumentID() ID { return ID{Collection: KindResource, PartialID: r.PartialID} }

func (r Resource) IsOpen() bool { return !r.IsClosed }

func (r Resource) Status() Resolution { return r.Resolution }

func (r Resource) WithStatus(status Resolution) Resource {
	r.Resolution = status
	return r
}
