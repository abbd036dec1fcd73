// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

var (
	// ErrNotFound is returned when no document has the requested ID.
	ErrNotFound = errors.New("store: document not found")

	// ErrExists is returned by Create when the ID is already taken.
	ErrExists = errors.New("store: document already exists")

	// ErrNoChange is returned by an Update mutator to abort the write.
	// Update passes it back to the caller together with the stored
	// document.
	ErrNoChange = errors.New("store: no change")
)

// Record is the untyped form of a document as a Backend sees it.
type Record struct {
	ID      document.ID
	Guild   ref.RoomID
	Open    bool
	Payload []byte
}

// Backend is the persistence contract implemented by each storage
// engine. Implementations must be safe for concurrent use and must
// run Update's mutator under whatever isolation makes the
// read-modify-write atomic with respect to other Updates of the same
// ID.
type Backend interface {
	Get(ctx context.Context, id document.ID) (Record, error)
	Create(ctx context.Context, record Record) error
	Update(ctx context.Context, id document.ID, mutate func(Record) (Record, error)) (Record, error)
	QueryOpen(ctx context.Context, kind document.Kind, guild ref.RoomID) ([]Record, error)
	Close() error
}
