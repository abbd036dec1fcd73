// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/testutil"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

func TestDispatchRoutesByPrefix(t *testing.T) {
	dispatcher := New(testutil.Logger(t))
	var tickets, suggestions []string
	dispatcher.Register("tickets", func(_ context.Context, action messaging.ActionInvoked) error {
		tickets = append(tickets, action.CustomID)
		return nil
	})
	dispatcher.Register("suggestions", func(_ context.Context, action messaging.ActionInvoked) error {
		suggestions = append(suggestions, action.CustomID)
		return errors.New("store unavailable")
	})

	for _, customID := range []string{"tickets|a|close", "suggestions|b|resolve", "reports|c|close", "tickets", ""} {
		dispatcher.Dispatch(context.Background(), messaging.ActionInvoked{CustomID: customID})
	}

	if len(tickets) != 2 || tickets[0] != "tickets|a|close" || tickets[1] != "tickets" {
		t.Errorf("tickets handler got %q", tickets)
	}
	if len(suggestions) != 1 {
		t.Errorf("suggestions handler got %q", suggestions)
	}
}

func TestDispatchReportsUnknownPrefix(t *testing.T) {
	dispatcher := New(nil)
	dispatcher.Register("tickets", func(context.Context, messaging.ActionInvoked) error { return nil })

	if !dispatcher.Dispatch(context.Background(), messaging.ActionInvoked{CustomID: "tickets|a"}) {
		t.Error("registered prefix reported as unhandled")
	}
	if dispatcher.Dispatch(context.Background(), messaging.ActionInvoked{CustomID: "ticketsx|a"}) {
		t.Error("unregistered prefix reported as handled")
	}
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"empty", ""},
		{"separator", "a|b"},
		{"duplicate", "tickets"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dispatcher := New(nil)
			dispatcher.Register("tickets", func(context.Context, messaging.ActionInvoked) error { return nil })
			defer func() {
				if recover() == nil {
					t.Errorf("Register(%q) did not panic", test.prefix)
				}
			}()
			dispatcher.Register(test.prefix, func(context.Context, messaging.ActionInvoked) error { return nil })
		})
	}
}

func TestDispatchRunsOneHandlerAtATime(t *testing.T) {
	dispatcher := New(nil)
	var running, overlaps atomic.Int32
	handler := func(context.Context, messaging.ActionInvoked) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return nil
	}
	dispatcher.Register("tickets", handler)
	dispatcher.Register("reports", handler)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			customID := "tickets|x"
			if i%2 == 0 {
				customID = "reports|x"
			}
			dispatcher.Dispatch(context.Background(), messaging.ActionInvoked{CustomID: customID})
		}()
	}
	wg.Wait()

	if overlaps.Load() != 0 {
		t.Errorf("%d handler invocations overlapped", overlaps.Load())
	}
}
