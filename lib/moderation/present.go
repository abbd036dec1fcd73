// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"strings"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

func presentTicket(ticket document.Ticket) (string, string, []messaging.Field) {
	return "Ticket", ticket.Topic, []messaging.Field{
		{Name: "Room", Value: ticket.ChannelID.String()},
	}
}

func presentSuggestion(suggestion document.Suggestion) (string, string, []messaging.Field) {
	return "Suggestion", suggestion.Body, nil
}

func presentReport(report document.Report) (string, string, []messaging.Field) {
	var fields []messaging.Field
	if len(report.Reported) > 0 {
		names := make([]string, len(report.Reported))
		for i, user := range report.Reported {
			names[i] = user.String()
		}
		fields = append(fields, messaging.Field{Name: "Reported", Value: strings.Join(names, ", ")})
	}
	if report.MessageLink != "" {
		fields = append(fields, messaging.Field{Name: "Message", Value: report.MessageLink})
	}
	return "Report", report.Reason, fields
}

func presentResource(resource document.Resource) (string, string, []messaging.Field) {
	body := resource.URL
	if resource.Description != "" {
		body += "\n" + resource.Description
	}
	return "Resource", body, nil
}
