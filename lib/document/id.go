// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Kind names a prompt kind. The string value doubles as the store
// collection name and the action-identifier prefix.
type Kind string

const (
	KindEntryRequest Kind = "entry-requests"
	KindTicket       Kind = "tickets"
	KindSuggestion   Kind = "suggestions"
	KindReport       Kind = "reports"
	KindResource     Kind = "resources"
)

// Kinds lists every known kind in a stable order.
var Kinds = []Kind{KindEntryRequest, KindTicket, KindSuggestion, KindReport, KindResource}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ID identifies a document: its collection and its partial id.
type ID struct {
	Collection Kind
	PartialID  string
}

// String returns the "collection:partialId" form.
func (id ID) String() string {
	return string(id.Collection) + ":" + id.PartialID
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.Collection == "" && id.PartialID == ""
}

// ParseID parses the "collection:partialId" form.
func ParseID(raw string) (ID, error) {
	collection, partialID, found := strings.Cut(raw, ":")
	if !found {
		return ID{}, fmt.Errorf("document ID %q: missing ':'", raw)
	}
	id := ID{Collection: Kind(collection), PartialID: partialID}
	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Validate checks the collection and the partial id character set.
func (id ID) Validate() error {
	if !id.Collection.Valid() {
		return fmt.Errorf("document ID %q: unknown collection %q", id, id.Collection)
	}
	if !ValidPartialID(id.PartialID) {
		return fmt.Errorf("document ID %q: invalid partial ID", id)
	}
	return nil
}

// ValidPartialID reports whether s is non-empty, at most 64 bytes,
// and only contains [a-z0-9-].
func ValidPartialID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// NewPartialID returns a random partial id.
func NewPartialID() string {
	return uuid.NewString()
}

var partialIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EntryRequestID returns the ID of the entry request submitted by
// author in guild. The partial id is the first 16 bytes of a BLAKE3
// digest over both identifiers, lower-case base32.
func EntryRequestID(guild ref.RoomID, author ref.UserID) ID {
	hasher := blake3.New()
	hasher.Write([]byte(guild.String()))
	hasher.Write([]byte{0})
	hasher.Write([]byte(author.String()))
	digest := hasher.Sum(nil)
	return ID{
		Collection: KindEntryRequest,
		PartialID:  strings.ToLower(partialIDEncoding.EncodeToString(digest[:16])),
	}
}
