// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "valid", input: "!abc123:example.org"},
		{name: "valid with port", input: "!opaque:localhost:6167"},
		{name: "empty", input: "", wantErr: "empty room ID"},
		{name: "wrong sigil", input: "#room:example.org", wantErr: "must start with '!'"},
		{name: "no server", input: "!abc123", wantErr: "missing ':server' suffix"},
		{name: "empty local part", input: "!:example.org", wantErr: "empty local part"},
		{name: "empty server", input: "!abc123:", wantErr: "empty server name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			roomID, err := ParseRoomID(test.input)
			if test.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseRoomID(%q) succeeded, want error containing %q", test.input, test.wantErr)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Errorf("error = %q, want substring %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoomID(%q): %v", test.input, err)
			}
			if roomID.String() != test.input {
				t.Errorf("String() = %q, want %q", roomID.String(), test.input)
			}
		})
	}
}

func TestParseUserID(t *testing.T) {
	userID, err := ParseUserID("@alice:example.org")
	if err != nil {
		t.Fatalf("ParseUserID: %v", err)
	}
	if userID.Localpart() != "alice" {
		t.Errorf("Localpart() = %q, want alice", userID.Localpart())
	}
	if userID.Server() != "example.org" {
		t.Errorf("Server() = %q, want example.org", userID.Server())
	}

	for _, raw := range []string{"", "@", "alice:example.org", "@:example.org", "@alice", "@alice:"} {
		if _, err := ParseUserID(raw); err == nil {
			t.Errorf("ParseUserID(%q) succeeded, want error", raw)
		}
	}
}

func TestParseEventID(t *testing.T) {
	if _, err := ParseEventID("$abc"); err != nil {
		t.Fatalf("ParseEventID: %v", err)
	}
	for _, raw := range []string{"", "$", "abc"} {
		if _, err := ParseEventID(raw); err == nil {
			t.Errorf("ParseEventID(%q) succeeded, want error", raw)
		}
	}
}

func TestTextRoundTripThroughJSON(t *testing.T) {
	type envelope struct {
		Room  RoomID  `json:"room"`
		User  UserID  `json:"user"`
		Event EventID `json:"event"`
		Unset RoomID  `json:"unset"`
	}
	original := envelope{
		Room:  MustParseRoomID("!room:example.org"),
		User:  MustParseUserID("@bob:example.org"),
		Event: MustParseEventID("$event"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"room":"!room:example.org"`) {
		t.Errorf("room not encoded as a string: %s", data)
	}

	var decoded envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}
	if !decoded.Unset.IsZero() {
		t.Errorf("unset room decoded as %q, want zero", decoded.Unset)
	}

	var bad envelope
	if err := json.Unmarshal([]byte(`{"room":"not-a-room"}`), &bad); err == nil {
		t.Error("Unmarshal accepted an invalid room ID")
	}
}
