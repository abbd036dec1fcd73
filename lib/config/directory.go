// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

// Guild is the parsed form of a GuildConfig.
type Guild struct {
	Space     ref.RoomID
	Channels  map[document.Kind]ref.RoomID
	EntryRole ref.RoomID
	Journal   ref.RoomID
	Voters    int
}

// Directory answers the room lookups the service makes at runtime.
// It is read-only after construction.
type Directory struct {
	guilds map[ref.RoomID]*Guild
	spaces []ref.RoomID

	// owner maps every configured room to its guild's space.
	owner map[ref.RoomID]ref.RoomID
}

// Directory parses the guild list. A room may belong to only one
// guild and serve only one purpose in it: prompt channels are wiped of
// foreign messages on every resync, so a shared room would lose
// another kind's prompts or the journal.
func (c *Config) Directory() (*Directory, error) {
	directory := &Directory{
		guilds: make(map[ref.RoomID]*Guild),
		owner:  make(map[ref.RoomID]ref.RoomID),
	}
	var errs []error

	for i, entry := range c.Guilds {
		where := fmt.Sprintf("guilds[%d]", i)
		space, err := ref.ParseRoomID(entry.Space)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.space: %w", where, err))
			continue
		}
		if _, duplicate := directory.guilds[space]; duplicate {
			errs = append(errs, fmt.Errorf("%s: space %s is configured twice", where, space))
			continue
		}
		guild := &Guild{Space: space, Channels: make(map[document.Kind]ref.RoomID), Voters: entry.Voters}

		claim := func(field string, raw string) ref.RoomID {
			room, err := ref.ParseRoomID(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", where, field, err))
				return ref.RoomID{}
			}
			if owner, taken := directory.owner[room]; taken {
				errs = append(errs, fmt.Errorf("%s.%s: room %s is already used in guild %s", where, field, room, owner))
				return ref.RoomID{}
			}
			directory.owner[room] = space
			return room
		}
		claim("space", entry.Space)

		kinds := make([]string, 0, len(entry.Channels))
		for kind := range entry.Channels {
			kinds = append(kinds, kind)
		}
		slices.Sort(kinds)
		for _, kind := range kinds {
			if !document.Kind(kind).Valid() {
				errs = append(errs, fmt.Errorf("%s.channels: unknown prompt kind %q", where, kind))
				continue
			}
			if room := claim("channels."+kind, entry.Channels[kind]); !room.IsZero() {
				guild.Channels[document.Kind(kind)] = room
			}
		}
		if entry.Journal != "" {
			guild.Journal = claim("journal", entry.Journal)
		}

		if _, ok := entry.Channels[string(document.KindEntryRequest)]; ok {
			if entry.EntryRole == "" {
				errs = append(errs, fmt.Errorf("%s.entry_role is required when entry requests are enabled", where))
			} else if role, err := ref.ParseRoomID(entry.EntryRole); err != nil {
				errs = append(errs, fmt.Errorf("%s.entry_role: %w", where, err))
			} else {
				guild.EntryRole = role
			}
		}
		if c.Quorum.Policy == PolicyProportional && entry.Voters < 1 {
			errs = append(errs, fmt.Errorf("%s.voters must be at least 1 with the proportional quorum policy", where))
		}

		directory.guilds[space] = guild
		directory.spaces = append(directory.spaces, space)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return directory, nil
}

// Spaces returns the configured spaces in file order.
func (d *Directory) Spaces() []ref.RoomID { return slices.Clone(d.spaces) }

// Guild returns the configuration of the guild with the given space.
func (d *Directory) Guild(space ref.RoomID) (Guild, bool) {
	guild, ok := d.guilds[space]
	if !ok {
		return Guild{}, false
	}
	return *guild, true
}

// Channel returns the prompt channel for kind in guild.
func (d *Directory) Channel(kind document.Kind, guild ref.RoomID) (ref.RoomID, bool) {
	entry, ok := d.guilds[guild]
	if !ok {
		return ref.RoomID{}, false
	}
	room, ok := entry.Channels[kind]
	return room, ok
}

// Journal returns the journal room of guild.
func (d *Directory) Journal(guild ref.RoomID) (ref.RoomID, bool) {
	entry, ok := d.guilds[guild]
	if !ok || entry.Journal.IsZero() {
		return ref.RoomID{}, false
	}
	return entry.Journal, true
}

// Voters returns the voter count of guild, or zero.
func (d *Directory) Voters(guild ref.RoomID) int {
	if entry, ok := d.guilds[guild]; ok {
		return entry.Voters
	}
	return 0
}

// GuildOf returns the space of the guild room belongs to. room may be
// the space itself or any room configured for the guild.
func (d *Directory) GuildOf(room ref.RoomID) (ref.RoomID, bool) {
	space, ok := d.owner[room]
	return space, ok
}

// Manages reports whether room is a configured space or one of its
// rooms. The service only accepts invites to such rooms.
func (d *Directory) Manages(room ref.RoomID) bool {
	_, ok := d.owner[room]
	return ok
}
