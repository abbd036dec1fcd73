// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"math"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Policy supplies the vote thresholds for a guild. Quorum is called
// inside the store's atomic update and while rendering, so it must be
// cheap and must not block.
type Policy interface {
	Quorum(guild ref.RoomID) (accept, reject int)
}

// StaticPolicy uses the same thresholds for every guild.
type StaticPolicy struct {
	Accept int
	Reject int
}

// Quorum implements Policy. Thresholds below one are raised to one.
func (p StaticPolicy) Quorum(ref.RoomID) (accept, reject int) {
	return max(p.Accept, 1), max(p.Reject, 1)
}

// ProportionalPolicy derives thresholds from the number of eligible
// voters in a guild: each threshold is the ratio times the voter
// count, rounded up, and at least one.
type ProportionalPolicy struct {
	AcceptRatio float64
	RejectRatio float64

	// Voters returns the number of eligible voters in guild.
	Voters func(guild ref.RoomID) int
}

// Quorum implements Policy.
func (p ProportionalPolicy) Quorum(guild ref.RoomID) (accept, reject int) {
	voters := 0
	if p.Voters != nil {
		voters = p.Voters(guild)
	}
	return proportion(p.AcceptRatio, voters), proportion(p.RejectRatio, voters)
}

func proportion(ratio float64, voters int) int {
	return max(int(math.Ceil(ratio*float64(voters))), 1)
}
