// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verification runs the vote on entry requests.
//
// A new member submits an entry request; its prompt in the guild's
// verification channel carries Accept and Reject controls. Each press
// records the voter's stance on the request: a first vote joins the
// matching set, a vote in the other direction moves the voter across,
// and a repeated vote changes nothing. A voter is never in both sets.
//
// After every recorded vote the request is checked against the
// guild's [Policy]. When the accept set reaches the accept quorum or
// the reject set reaches the reject quorum, the request is finalised
// in the same store update that recorded the deciding vote. The prompt
// manager then untracks it before anything else happens, so exactly
// one of the two outcomes fires exactly once: the submitter is granted
// the requested role, or banned with a reason naming the tallies.
package verification
