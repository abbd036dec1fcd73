// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/journal"
	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// Control extras carried in the custom ids of an entry request prompt.
const (
	ExtraAccept = "accept"
	ExtraReject = "reject"
)

// Notices sent to a voter whose press changes nothing.
const (
	NoticeOwnRequest     = "You cannot vote on your own entry request."
	NoticeAlreadyAccept  = "You already voted to accept this request."
	NoticeAlreadyReject  = "You already voted to reject this request."
	NoticeUnknownControl = "That control is no longer supported."
)

type stance int

const (
	stanceNone stance = iota
	stanceAccept
	stanceReject
)

func stanceOf(req document.EntryRequest, user ref.UserID) stance {
	switch {
	case slices.Contains(req.VotedFor, user):
		return stanceAccept
	case slices.Contains(req.VotedAgainst, user):
		return stanceReject
	default:
		return stanceNone
	}
}

func (s stance) verb() string {
	if s == stanceAccept {
		return "accept"
	}
	return "reject"
}

// adapter is the prompt.Adapter for entry requests.
type adapter struct {
	platform messaging.Platform
	policy   Policy
	journal  *journal.Journal
	logger   *slog.Logger
}

var _ prompt.Adapter[document.EntryRequest] = (*adapter)(nil)

func (a *adapter) Kind() document.Kind { return document.KindEntryRequest }

func (a *adapter) Render(req document.EntryRequest) messaging.PromptContent {
	accept, reject := a.policy.Quorum(req.GuildID)
	fields := make([]messaging.Field, 0, len(req.Answers)+2)
	for _, answer := range req.Answers {
		fields = append(fields, messaging.Field{Name: answer.Question, Value: answer.Answer})
	}
	fields = append(fields,
		messaging.Field{Name: "Accept", Value: tally(req.VotedFor, accept)},
		messaging.Field{Name: "Reject", Value: tally(req.VotedAgainst, reject)},
	)

	id := req.DocumentID()
	return messaging.PromptContent{
		Title:  "Entry request",
		Body:   fmt.Sprintf("%s asks for %s.", req.AuthorID, req.RequestedRoleID),
		Fields: fields,
		Controls: []messaging.Control{
			prompt.NewControl("Accept", messaging.StyleSuccess, id, ExtraAccept),
			prompt.NewControl("Reject", messaging.StyleDanger, id, ExtraReject),
		},
	}
}

func tally(voters []ref.UserID, quorum int) string {
	count := fmt.Sprintf("%d/%d", len(voters), quorum)
	if len(voters) == 0 {
		return count
	}
	names := make([]string, len(voters))
	for i, voter := range voters {
		names[i] = voter.String()
	}
	return count + " (" + strings.Join(names, ", ") + ")"
}

// Decide records the vote and finalises the request when a quorum is
// reached.
func (a *adapter) Decide(in prompt.Interaction, req document.EntryRequest) prompt.Verdict[document.EntryRequest] {
	if len(in.Extra) != 1 {
		return prompt.Ignore[document.EntryRequest](NoticeUnknownControl)
	}
	var vote stance
	switch in.Extra[0] {
	case ExtraAccept:
		vote = stanceAccept
	case ExtraReject:
		vote = stanceReject
	default:
		return prompt.Ignore[document.EntryRequest](NoticeUnknownControl)
	}
	if in.User == req.AuthorID {
		return prompt.Ignore[document.EntryRequest](NoticeOwnRequest)
	}

	if stanceOf(req, in.User) == vote {
		if vote == stanceAccept {
			return prompt.Ignore[document.EntryRequest](NoticeAlreadyAccept)
		}
		return prompt.Ignore[document.EntryRequest](NoticeAlreadyReject)
	}

	req = req.Clone()
	req.VotedFor = slices.DeleteFunc(req.VotedFor, func(u ref.UserID) bool { return u == in.User })
	req.VotedAgainst = slices.DeleteFunc(req.VotedAgainst, func(u ref.UserID) bool { return u == in.User })
	if vote == stanceAccept {
		req.VotedFor = append(req.VotedFor, in.User)
	} else {
		req.VotedAgainst = append(req.VotedAgainst, in.User)
	}

	accept, reject := a.policy.Quorum(req.GuildID)
	switch {
	case len(req.VotedFor) >= accept:
		req.IsFinalised = true
		req.Decision = document.DecisionAccepted
		return prompt.Finalize(req)
	case len(req.VotedAgainst) >= reject:
		req.IsFinalised = true
		req.Decision = document.DecisionRejected
		return prompt.Finalize(req)
	}
	return prompt.Persist(req)
}

// Apply acknowledges the vote and, for a finalised request, grants
// the role or bans the submitter.
func (a *adapter) Apply(ctx context.Context, in prompt.Interaction, outcome prompt.Outcome[document.EntryRequest]) {
	after := outcome.After
	switch outcome.Verdict {
	case prompt.VerdictPersist:
		a.acknowledge(ctx, in, outcome)
	case prompt.VerdictFinalize:
		switch after.Decision {
		case document.DecisionAccepted:
			a.accept(ctx, in, after)
		case document.DecisionRejected:
			a.reject(ctx, in, after)
		default:
			a.logger.Error("finalised entry request has no decision",
				"document_id", after.DocumentID(),
			)
		}
	}
}

func (a *adapter) acknowledge(ctx context.Context, in prompt.Interaction, outcome prompt.Outcome[document.EntryRequest]) {
	previous := stanceOf(outcome.Before, in.User)
	current := stanceOf(outcome.After, in.User)
	a.logger.Debug("vote recorded",
		"document_id", in.Document,
		"user_id", in.User,
		"stance", current.verb(),
		"voted_at", in.At,
	)
	text := fmt.Sprintf("Your vote to %s was recorded.", current.verb())
	if previous != stanceNone {
		text = fmt.Sprintf("Your vote was changed to %s.", current.verb())
	}
	if err := a.platform.Respond(ctx, in.Channel, in.User, text); err != nil {
		a.logger.Warn("acknowledging vote failed",
			"document_id", in.Document,
			"user_id", in.User,
			"error", err,
		)
	}
}

func (a *adapter) accept(ctx context.Context, in prompt.Interaction, req document.EntryRequest) {
	if err := a.platform.GrantRole(ctx, req.GuildID, req.RequestedRoleID, req.AuthorID); err != nil {
		a.logger.Warn("granting role to accepted member failed",
			"guild_id", req.GuildID,
			"document_id", req.DocumentID(),
			"user_id", req.AuthorID,
			"role_id", req.RequestedRoleID,
			"error", err,
		)
	}
	a.journal.Record(ctx, journal.Entry{
		Guild:    req.GuildID,
		Document: req.DocumentID(),
		Action:   "accepted",
		Actor:    in.User,
		At:       in.At,
		Subject:  req.AuthorID,
		Summary:  summary(req),
	})
}

func (a *adapter) reject(ctx context.Context, in prompt.Interaction, req document.EntryRequest) {
	if err := a.platform.BanMember(ctx, req.GuildID, req.AuthorID, BanReason(req)); err != nil {
		a.logger.Warn("banning rejected member failed",
			"guild_id", req.GuildID,
			"document_id", req.DocumentID(),
			"user_id", req.AuthorID,
			"error", err,
		)
	}
	a.journal.Record(ctx, journal.Entry{
		Guild:    req.GuildID,
		Document: req.DocumentID(),
		Action:   "rejected",
		Actor:    in.User,
		At:       in.At,
		Subject:  req.AuthorID,
		Summary:  summary(req),
	})
}

func (a *adapter) OnFinalize(ctx context.Context, req document.EntryRequest) {}

func summary(req document.EntryRequest) string {
	return fmt.Sprintf("%d for, %d against", len(req.VotedFor), len(req.VotedAgainst))
}

// BanReason is the audit reason attached to the ban of a rejected
// submitter. The margin is how many more votes were cast against the
// request than for it.
func BanReason(req document.EntryRequest) string {
	return fmt.Sprintf("Entry request rejected: %s (margin %d)",
		summary(req), len(req.VotedAgainst)-len(req.VotedFor))
}
