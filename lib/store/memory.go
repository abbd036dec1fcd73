// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// MemoryBackend keeps records in process memory. A single mutex
// serialises every operation, which makes Update trivially atomic.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[document.ID]Record
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[document.ID]Record)}
}

func (m *MemoryBackend) Get(_ context.Context, id document.ID) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(record), nil
}

func (m *MemoryBackend) Create(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.ID]; exists {
		return ErrExists
	}
	m.records[record.ID] = cloneRecord(record)
	return nil
}

func (m *MemoryBackend) Update(_ context.Context, id document.ID, mutate func(Record) (Record, error)) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	updated, err := mutate(cloneRecord(current))
	if err != nil {
		if errors.Is(err, ErrNoChange) {
			return cloneRecord(current), ErrNoChange
		}
		return Record{}, err
	}
	updated.ID = id
	m.records[id] = cloneRecord(updated)
	return updated, nil
}

func (m *MemoryBackend) QueryOpen(_ context.Context, kind document.Kind, guild ref.RoomID) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []Record
	for id, record := range m.records {
		if id.Collection == kind && record.Guild == guild && record.Open {
			records = append(records, cloneRecord(record))
		}
	}
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.ID.PartialID, b.ID.PartialID)
	})
	return records, nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }

// Len returns the number of stored records of any kind.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func cloneRecord(record Record) Record {
	record.Payload = slices.Clone(record.Payload)
	return record
}
