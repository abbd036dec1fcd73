// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the chat-platform collaborator: a thin Matrix
// client-server API wrapper plus the [Platform] abstraction the
// prompt lifecycle is written against.
//
// [Client] is an unauthenticated client holding the homeserver URL,
// HTTP transport, and an outbound request limiter. [DirectSession]
// adds an access token and exposes the endpoints the service uses:
// sending and redacting events, paginated room history, incremental
// sync, membership changes (invite, kick, ban, leave), and room
// creation.
//
// [MatrixPlatform] maps the platform concepts onto Matrix. A guild is
// a space room, a channel is a room, a prompt is an m.room.message
// carrying an org.gatekeeper.prompt metadata token and a control set,
// a deletion is a redaction, and an edit is an m.replace relation.
// [EventStream] drives the /sync long-poll and translates timeline
// events into typed [PlatformEvent] values.
//
// All API errors are returned as [*MatrixError] with the standard Matrix
// error code and HTTP status code. [IsMatrixError] tests for a specific
// code; [IsGone] reports whether a target message is already absent.
package messaging
