// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes actions pressed on prompts to the handler
// registered for their kind.
//
// The kind is the first field of the action's custom id. Handlers are
// registered once per kind before dispatching starts. Dispatch runs at
// most one handler at a time for the whole process, so handlers see
// actions in the order they were dispatched.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/gatekeeper/lib/prompt"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// HandlerFunc handles one action. prompt.Manager.HandleAction has this
// signature.
type HandlerFunc func(ctx context.Context, action messaging.ActionInvoked) error

// Dispatcher is a registry of action handlers keyed by kind prefix.
type Dispatcher struct {
	logger *slog.Logger

	// mu serialises Dispatch and guards handlers.
	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

// New creates an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{logger: logger, handlers: make(map[string]HandlerFunc)}
}

// Register installs handler for actions whose custom id starts with
// prefix. Panics if prefix is empty, contains the custom id separator,
// or already has a handler.
func (d *Dispatcher) Register(prefix string, handler HandlerFunc) {
	if prefix == "" || strings.Contains(prefix, prompt.Separator) {
		panic(fmt.Sprintf("dispatch: invalid prefix %q", prefix))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[prefix]; exists {
		panic(fmt.Sprintf("dispatch: duplicate handler for prefix %q", prefix))
	}
	d.handlers[prefix] = handler
}

// Dispatch delivers action to the handler for its prefix and reports
// whether one was found. Actions with no registered prefix are
// dropped. A handler error is logged, not returned: there is nobody to
// return it to.
func (d *Dispatcher) Dispatch(ctx context.Context, action messaging.ActionInvoked) bool {
	prefix, _, _ := strings.Cut(action.CustomID, prompt.Separator)

	d.mu.Lock()
	defer d.mu.Unlock()
	handler, ok := d.handlers[prefix]
	if !ok {
		d.logger.Debug("dropping action with unknown prefix",
			"custom_id", action.CustomID,
			"user_id", action.User,
		)
		return false
	}
	if err := handler(ctx, action); err != nil {
		d.logger.Error("action handler failed",
			"prefix", prefix,
			"custom_id", action.CustomID,
			"user_id", action.User,
			"error", err,
		)
	}
	return true
}
