// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the
// gatekeeper binary.
//
// Four package-level variables may be injected at build time via
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/gatekeeper/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Commit, dirty state and build time that were not injected are taken
// from the VCS stamp Go embeds in module builds, when present.
package version
