// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the two time operations gatekeeper needs:
// reading the current time (document timestamps, journal entries) and
// waiting (the /sync retry backoff).
//
// Production code injects [Real]; tests inject [Fake] and move time
// explicitly with Advance. Code that would otherwise call time.Now or
// time.After takes a Clock instead.
package clock
