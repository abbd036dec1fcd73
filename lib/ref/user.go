// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// UserID is a validated Matrix user ID (e.g., "@alice:example.org").
// Submitters, voters, and the service account itself are all UserIDs.
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw Matrix user ID string.
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := splitUserID(raw); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// MustParseUserID is like ParseUserID but panics on error.
func MustParseUserID(raw string) UserID {
	userID, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseUserID(%q): %v", raw, err))
	}
	return userID
}

// String returns the full user ID.
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is unset.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the part between '@' and ':'. Returns "" for the
// zero value.
func (u UserID) Localpart() string {
	localpart, _, _ := splitUserID(u.id)
	return localpart
}

// Server returns the part after the first ':'. Returns "" for the
// zero value.
func (u UserID) Server() string {
	_, server, _ := splitUserID(u.id)
	return server
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// yields the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func splitUserID(raw string) (localpart, server string, err error) {
	if len(raw) < 2 || raw[0] != '@' {
		return "", "", fmt.Errorf("invalid user ID %q: must start with @", raw)
	}
	colonIndex := strings.IndexByte(raw, ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid user ID %q: missing :server", raw)
	}
	if colonIndex == 1 {
		return "", "", fmt.Errorf("invalid user ID %q: empty localpart", raw)
	}
	if colonIndex == len(raw)-1 {
		return "", "", fmt.Errorf("invalid user ID %q: empty server", raw)
	}
	return raw[1:colonIndex], raw[colonIndex+1:], nil
}
