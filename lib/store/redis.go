// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// maxRedisAttempts bounds the optimistic-transaction retries in
// Create and Update when a watched key changes underneath them.
const maxRedisAttempts = 8

// RedisBackend stores each record as a hash with fields guild, open,
// and payload, plus one set per (kind, guild) holding the partial ids
// of open documents.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds connection parameters for NewRedisBackend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key. Defaults to "gatekeeper".
	KeyPrefix string
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, config RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: connecting to redis at %s: %w", config.Addr, err)
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "gatekeeper"
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

func (r *RedisBackend) documentKey(id document.ID) string {
	return r.prefix + ":doc:" + id.String()
}

func (r *RedisBackend) openKey(kind document.Kind, guild ref.RoomID) string {
	return r.prefix + ":open:" + string(kind) + ":" + guild.String()
}

func (r *RedisBackend) Get(ctx context.Context, id document.ID) (Record, error) {
	fields, err := r.client.HGetAll(ctx, r.documentKey(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("store: reading %s: %w", id, err)
	}
	return parseRedisRecord(id, fields)
}

func (r *RedisBackend) Create(ctx context.Context, record Record) error {
	key := r.documentKey(record.ID)
	return r.retry(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.write(ctx, pipe, record, Record{})
			return nil
		})
		return err
	})
}

func (r *RedisBackend) Update(ctx context.Context, id document.ID, mutate func(Record) (Record, error)) (Record, error) {
	key := r.documentKey(id)
	var result Record
	err := r.retry(ctx, key, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		current, err := parseRedisRecord(id, fields)
		if err != nil {
			return err
		}
		updated, err := mutate(current)
		if err != nil {
			if errors.Is(err, ErrNoChange) {
				result = current
			}
			return err
		}
		updated.ID = id
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.write(ctx, pipe, updated, current)
			return nil
		})
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if errors.Is(err, ErrNoChange) {
		return result, ErrNoChange
	}
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

func (r *RedisBackend) QueryOpen(ctx context.Context, kind document.Kind, guild ref.RoomID) ([]Record, error) {
	partialIDs, err := r.client.SMembers(ctx, r.openKey(kind, guild)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: querying open %s in %s: %w", kind, guild, err)
	}
	slices.Sort(partialIDs)

	pipe := r.client.Pipeline()
	commands := make([]*redis.MapStringStringCmd, len(partialIDs))
	for index, partialID := range partialIDs {
		commands[index] = pipe.HGetAll(ctx, r.documentKey(document.ID{Collection: kind, PartialID: partialID}))
	}
	if len(partialIDs) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("store: reading open %s in %s: %w", kind, guild, err)
		}
	}

	records := make([]Record, 0, len(partialIDs))
	for index, command := range commands {
		id := document.ID{Collection: kind, PartialID: partialIDs[index]}
		record, err := parseRedisRecord(id, command.Val())
		if errors.Is(err, ErrNotFound) {
			// The index can briefly outlive a record only if a key
			// was deleted by hand; skip it rather than fail the query.
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.Open && record.Guild == guild {
			records = append(records, record)
		}
	}
	return records, nil
}

// Close closes the Redis client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// write queues the hash write and the open-index maintenance for
// record. previous is the stored record before the write, or the zero
// Record for a create.
func (r *RedisBackend) write(ctx context.Context, pipe redis.Pipeliner, record, previous Record) {
	open := "0"
	if record.Open {
		open = "1"
	}
	pipe.HSet(ctx, r.documentKey(record.ID),
		"guild", record.Guild.String(),
		"open", open,
		"payload", record.Payload,
	)
	if previous.Open && (!record.Open || previous.Guild != record.Guild) {
		pipe.SRem(ctx, r.openKey(record.ID.Collection, previous.Guild), record.ID.PartialID)
	}
	if record.Open {
		pipe.SAdd(ctx, r.openKey(record.ID.Collection, record.Guild), record.ID.PartialID)
	}
}

func (r *RedisBackend) retry(ctx context.Context, key string, transaction func(*redis.Tx) error) error {
	var err error
	for range maxRedisAttempts {
		err = r.client.Watch(ctx, transaction, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("store: %s: gave up after %d conflicting writes: %w", key, maxRedisAttempts, err)
}

func parseRedisRecord(id document.ID, fields map[string]string) (Record, error) {
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}
	guild, err := ref.ParseRoomID(fields["guild"])
	if err != nil {
		return Record{}, fmt.Errorf("store: stored guild for %s: %w", id, err)
	}
	payload, ok := fields["payload"]
	if !ok {
		return Record{}, fmt.Errorf("store: %s has no payload", id)
	}
	return Record{
		ID:      id,
		Guild:   guild,
		Open:    strings.TrimSpace(fields["open"]) == "1",
		Payload: []byte(payload),
	}, nil
}
