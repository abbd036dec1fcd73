// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/gatekeeper/lib/ref"
)

func TestNewClient(t *testing.T) {
	t.Run("requires homeserver URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected error for empty HomeserverURL")
		}
	})

	t.Run("rejects malformed URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "http://[::1"}); err == nil {
			t.Fatal("expected error for malformed HomeserverURL")
		}
	})

	t.Run("strips trailing slash", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:6167/"})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		if client.baseURL != "http://localhost:6167" {
			t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:6167")
		}
	})
}

func TestSessionFromToken(t *testing.T) {
	client, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:6167"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.SessionFromToken(ref.UserID{}, "token"); err == nil {
		t.Error("expected error for zero user ID")
	}
	if _, err := client.SessionFromToken(ref.MustParseUserID("@gatekeeper:example.org"), ""); err == nil {
		t.Error("expected error for empty access token")
	}

	session, err := client.SessionFromToken(ref.MustParseUserID("@gatekeeper:example.org"), "token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if session.UserID().String() != "@gatekeeper:example.org" {
		t.Errorf("UserID() = %q", session.UserID())
	}
}

func TestDoRequestAuthorizationAndErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer secret-token" {
			writer.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(writer).Encode(MatrixError{Code: ErrCodeUnknownToken, Message: "bad token"})
			return
		}
		switch request.URL.Path {
		case "/_matrix/client/v3/account/whoami":
			json.NewEncoder(writer).Encode(WhoAmIResponse{UserID: ref.MustParseUserID("@gatekeeper:example.org")})
		default:
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(MatrixError{Code: ErrCodeNotFound, Message: "no such endpoint"})
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@gatekeeper:example.org"), "secret-token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if userID.String() != "@gatekeeper:example.org" {
		t.Errorf("WhoAmI = %q", userID)
	}

	_, err = session.Redact(context.Background(), ref.MustParseRoomID("!room:example.org"), ref.MustParseEventID("$event"), "")
	if !IsMatrixError(err, ErrCodeNotFound) {
		t.Fatalf("Redact error = %v, want M_NOT_FOUND", err)
	}
	if !IsGone(err) {
		t.Error("IsGone should accept M_NOT_FOUND")
	}

	wrong, err := client.SessionFromToken(ref.MustParseUserID("@gatekeeper:example.org"), "wrong")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	_, err = wrong.WhoAmI(context.Background())
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("WhoAmI with wrong token: got %v, want *MatrixError", err)
	}
	if matrixErr.StatusCode != http.StatusUnauthorized || matrixErr.Code != ErrCodeUnknownToken {
		t.Errorf("got %d %s, want 401 M_UNKNOWN_TOKEN", matrixErr.StatusCode, matrixErr.Code)
	}
}

func TestDoRequestNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@gatekeeper:example.org"), "token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}

	_, err = session.WhoAmI(context.Background())
	if err == nil {
		t.Fatal("expected error for 502")
	}
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		t.Errorf("non-JSON body should not produce *MatrixError, got %v", matrixErr)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		json.NewEncoder(writer).Encode(WhoAmIResponse{UserID: ref.MustParseUserID("@gatekeeper:example.org")})
	}))
	defer server.Close()

	// One request per hour with a burst of one: the second request
	// cannot be admitted before the context is cancelled.
	client, err := NewClient(ClientConfig{HomeserverURL: server.URL, RequestsPerSecond: 1.0 / 3600, Burst: 1})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@gatekeeper:example.org"), "token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}

	if _, err := session.WhoAmI(context.Background()); err != nil {
		t.Fatalf("first WhoAmI: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := session.WhoAmI(ctx); err == nil {
		t.Fatal("expected throttled request to fail once the context is done")
	}
}
