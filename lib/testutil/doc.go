// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for gatekeeper packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. They are the only place in
// the test suite where real wall-clock timeouts are used; everything
// else runs on clock.Fake.
//
// [Logger] returns a slog.Logger that writes through t.Log so that log
// output is attributed to the test that produced it.
package testutil
