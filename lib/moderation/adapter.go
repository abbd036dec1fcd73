// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"context"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/journal"
	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// Control extras carried in the custom ids of a moderation prompt.
const (
	ExtraResolve   = "resolve"
	ExtraUnresolve = "unresolve"
	ExtraClose     = "close"
)

// Notices sent to a moderator whose press changes nothing.
const (
	NoticeAlreadyResolved = "This is already resolved."
	NoticeNotResolved     = "This is not resolved."
	NoticeUnknownControl  = "That control is no longer supported."
)

// resolvable is a document with the shared resolve/close state.
type resolvable[D any] interface {
	document.Document
	Status() document.Resolution
	WithStatus(document.Resolution) D
}

// presenter renders the kind-specific part of a prompt.
type presenter[D any] func(doc D) (title, body string, fields []messaging.Field)

type adapter[D resolvable[D]] struct {
	kind     document.Kind
	present  presenter[D]
	journal  *journal.Journal
	finalize func(ctx context.Context, doc D)
}

func (a *adapter[D]) Kind() document.Kind { return a.kind }

func (a *adapter[D]) Render(doc D) messaging.PromptContent {
	title, body, fields := a.present(doc)
	status := "Open"
	if doc.Status().IsResolved {
		status = "Resolved"
	}
	fields = append(fields,
		messaging.Field{Name: "Submitted by", Value: doc.Author().String()},
		messaging.Field{Name: "Status", Value: status},
	)

	id := doc.DocumentID()
	toggle := prompt.NewControl("Resolve", messaging.StyleSuccess, id, ExtraResolve)
	if doc.Status().IsResolved {
		toggle = prompt.NewControl("Unresolve", messaging.StyleSecondary, id, ExtraUnresolve)
	}
	return messaging.PromptContent{
		Title:  title,
		Body:   body,
		Fields: fields,
		Controls: []messaging.Control{
			toggle,
			prompt.NewControl("Close", messaging.StyleDanger, id, ExtraClose),
		},
	}
}

func (a *adapter[D]) Decide(in prompt.Interaction, doc D) prompt.Verdict[D] {
	if len(in.Extra) != 1 {
		return prompt.Ignore[D](NoticeUnknownControl)
	}
	status := doc.Status()
	switch in.Extra[0] {
	case ExtraResolve:
		if status.IsResolved {
			return prompt.Ignore[D](NoticeAlreadyResolved)
		}
		status.IsResolved = true
		return prompt.Persist(doc.WithStatus(status))
	case ExtraUnresolve:
		if !status.IsResolved {
			return prompt.Ignore[D](NoticeNotResolved)
		}
		status.IsResolved = false
		return prompt.Persist(doc.WithStatus(status))
	case ExtraClose:
		status.IsClosed = true
		return prompt.Finalize(doc.WithStatus(status))
	default:
		return prompt.Ignore[D](NoticeUnknownControl)
	}
}

func (a *adapter[D]) Apply(ctx context.Context, in prompt.Interaction, outcome prompt.Outcome[D]) {
	action := "closed"
	if outcome.Verdict == prompt.VerdictPersist {
		action = "reopened"
		if outcome.After.Status().IsResolved {
			action = "resolved"
		}
	}
	a.journal.Record(ctx, journal.Entry{
		Guild:    in.Guild,
		Document: in.Document,
		Action:   action,
		Actor:    in.User,
		At:       in.At,
		Subject:  outcome.After.Author(),
	})
}

func (a *adapter[D]) OnFinalize(ctx context.Context, doc D) {
	if a.finalize != nil {
		a.finalize(ctx, doc)
	}
}
