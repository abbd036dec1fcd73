// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for gatekeeper.
//
// Configuration is loaded from a single file specified by either the
// GATEKEEPER_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search. The file is YAML, or JSON with comments when its name ends
// in .jsonc.
//
// The file may contain environment-specific sections (development,
// staging, production) that override the matrix and store settings
// when [Config].Environment matches. ${VAR} and ${VAR:-default}
// patterns are expanded in the store locations.
//
// Secrets never live in the file. The Matrix access token and the
// Redis password are read from GATEKEEPER_ACCESS_TOKEN and
// GATEKEEPER_REDIS_PASSWORD.
//
// [Config.Directory] turns the guild list into a [Directory], which
// answers the room lookups made at runtime: the channel of each
// prompt kind, the journal room, and which guild a room belongs to.
package config
