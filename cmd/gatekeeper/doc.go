// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gatekeeper is a community-management service for Matrix spaces. It
// keeps one interactive prompt message per open document (entry
// request, ticket, suggestion, report, resource) in each kind's
// configured room, repairs prompts that members delete or strip, and
// routes presses on their controls to the kind's logic: votes on
// entry requests, and resolve or close on the moderation queues.
//
// At startup it performs an initial /sync, rebuilds the prompts of
// every configured space in parallel, and then follows the /sync
// stream until SIGINT or SIGTERM. Prompts are left in place on
// shutdown and adopted again on the next start.
//
// Usage:
//
//	gatekeeper --config /etc/gatekeeper/gatekeeper.yaml
//
// The access token is read from GATEKEEPER_ACCESS_TOKEN.
package main
