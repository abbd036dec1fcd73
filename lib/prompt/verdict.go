// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import "github.com/bureau-foundation/gatekeeper/lib/document"

// VerdictKind selects what the Manager does after an adapter decides.
type VerdictKind int

const (
	// VerdictIgnore leaves the document and prompt untouched.
	VerdictIgnore VerdictKind = iota
	// VerdictPersist stores the changed document and re-renders its
	// prompt in place.
	VerdictPersist
	// VerdictFinalize stores the terminal document, untracks it, runs
	// the kind's finalize side effects and deletes the prompt.
	VerdictFinalize
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictIgnore:
		return "ignore"
	case VerdictPersist:
		return "persist"
	case VerdictFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Verdict is an adapter's decision for one interaction. Construct it
// with Persist, Finalize or Ignore.
type Verdict[D document.Document] struct {
	kind     VerdictKind
	document D
	notice   string
}

// Persist returns a verdict that stores doc and re-renders its prompt.
func Persist[D document.Document](doc D) Verdict[D] {
	return Verdict[D]{kind: VerdictPersist, document: doc}
}

// Finalize returns a verdict that stores doc, which must no longer be
// open, and removes its prompt.
func Finalize[D document.Document](doc D) Verdict[D] {
	return Verdict[D]{kind: VerdictFinalize, document: doc}
}

// Ignore returns a verdict that changes nothing. A non-empty notice is
// sent privately to the acting user.
func Ignore[D document.Document](notice string) Verdict[D] {
	return Verdict[D]{kind: VerdictIgnore, notice: notice}
}

// Kind returns which of the three verdicts v is.
func (v Verdict[D]) Kind() VerdictKind { return v.kind }

// Document returns the document carried by a Persist or Finalize verdict.
func (v Verdict[D]) Document() D { return v.document }

// Notice returns the user-facing notice of an Ignore verdict.
func (v Verdict[D]) Notice() string { return v.notice }

// Outcome describes a committed verdict to Adapter.Apply. Before is
// the document as read by the committing update; After is what was
// stored.
type Outcome[D document.Document] struct {
	Verdict VerdictKind
	Before  D
	After   D
}
