// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/gatekeeper/lib/codec"
	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Collection is a typed view of one document kind in a Backend.
type Collection[D document.Document] struct {
	backend Backend
	kind    document.Kind
}

// NewCollection returns the collection for kind. D must be the
// document type whose IDs use that kind.
func NewCollection[D document.Document](backend Backend, kind document.Kind) *Collection[D] {
	return &Collection[D]{backend: backend, kind: kind}
}

// Kind returns the collection's kind.
func (c *Collection[D]) Kind() document.Kind { return c.kind }

// Get fetches the document with the given ID.
func (c *Collection[D]) Get(ctx context.Context, id document.ID) (D, error) {
	var zero D
	if id.Collection != c.kind {
		return zero, fmt.Errorf("store: %s is not in collection %s", id, c.kind)
	}
	record, err := c.backend.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	return decode[D](record)
}

// Create inserts doc. Returns ErrExists if its ID is already stored.
func (c *Collection[D]) Create(ctx context.Context, doc D) error {
	record, err := c.encode(doc)
	if err != nil {
		return err
	}
	return c.backend.Create(ctx, record)
}

// Update applies mutate to the stored document atomically and returns
// the document as stored afterwards. If mutate returns ErrNoChange the
// stored document is returned unchanged along with ErrNoChange. Any
// other mutator error aborts the update and is returned as is.
//
// The mutator may run more than once if the backend retries after a
// conflicting write, so it must not have side effects.
func (c *Collection[D]) Update(ctx context.Context, id document.ID, mutate func(D) (D, error)) (D, error) {
	var zero D
	if id.Collection != c.kind {
		return zero, fmt.Errorf("store: %s is not in collection %s", id, c.kind)
	}
	var stored D
	record, err := c.backend.Update(ctx, id, func(current Record) (Record, error) {
		doc, err := decode[D](current)
		if err != nil {
			return Record{}, err
		}
		stored = doc
		updated, err := mutate(doc)
		if err != nil {
			return Record{}, err
		}
		if updated.DocumentID() != id {
			return Record{}, fmt.Errorf("store: mutator changed document ID from %s to %s", id, updated.DocumentID())
		}
		stored = updated
		return c.encode(updated)
	})
	if errors.Is(err, ErrNoChange) {
		return stored, ErrNoChange
	}
	if err != nil {
		return zero, err
	}
	return decode[D](record)
}

// QueryOpen returns every open document of this kind in guild.
func (c *Collection[D]) QueryOpen(ctx context.Context, guild ref.RoomID) ([]D, error) {
	records, err := c.backend.QueryOpen(ctx, c.kind, guild)
	if err != nil {
		return nil, err
	}
	docs := make([]D, 0, len(records))
	for _, record := range records {
		doc, err := decode[D](record)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection[D]) encode(doc D) (Record, error) {
	id := doc.DocumentID()
	if id.Collection != c.kind {
		return Record{}, fmt.Errorf("store: %s is not in collection %s", id, c.kind)
	}
	if err := id.Validate(); err != nil {
		return Record{}, fmt.Errorf("store: %w", err)
	}
	payload, err := codec.Marshal(doc)
	if err != nil {
		return Record{}, fmt.Errorf("store: encoding %s: %w", id, err)
	}
	return Record{ID: id, Guild: doc.Guild(), Open: doc.IsOpen(), Payload: payload}, nil
}

func decode[D document.Document](record Record) (D, error) {
	var doc D
	if err := codec.Unmarshal(record.Payload, &doc); err != nil {
		if diagnostic, diagErr := codec.Diagnose(record.Payload); diagErr == nil {
			return doc, fmt.Errorf("store: decoding %s (payload %s): %w", record.ID, diagnostic, err)
		}
		return doc, fmt.Errorf("store: decoding %s: %w", record.ID, err)
	}
	return doc, nil
}
