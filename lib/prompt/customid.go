// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/gatekeeper/lib/document"
	"github.com/bureau-foundation/gatekeeper/messaging"
)

// Separator joins the fields of a custom identifier. It may not occur
// inside any field.
const Separator = "|"

// CustomID is a decoded action identifier.
type CustomID struct {
	Kind      document.Kind
	PartialID string
	Extra     []string
}

// DocumentID returns the ID of the document the action targets.
func (c CustomID) DocumentID() document.ID {
	return document.ID{Collection: c.Kind, PartialID: c.PartialID}
}

// EncodeCustomID joins kind, partialID and extra with Separator.
func EncodeCustomID(kind document.Kind, partialID string, extra ...string) (string, error) {
	fields := make([]string, 0, 2+len(extra))
	fields = append(fields, string(kind), partialID)
	fields = append(fields, extra...)
	for _, field := range fields {
		if field == "" {
			return "", fmt.Errorf("prompt: empty field in custom ID %q", fields)
		}
		if strings.Contains(field, Separator) {
			return "", fmt.Errorf("prompt: field %q contains reserved separator %q", field, Separator)
		}
	}
	return strings.Join(fields, Separator), nil
}

// DecodeCustomID splits raw into its fields. The kind must be known
// and the partial id well-formed.
func DecodeCustomID(raw string) (CustomID, error) {
	fields := strings.Split(raw, Separator)
	if len(fields) < 2 {
		return CustomID{}, fmt.Errorf("prompt: custom ID %q has no document field", raw)
	}
	kind := document.Kind(fields[0])
	if !kind.Valid() {
		return CustomID{}, fmt.Errorf("prompt: custom ID %q has unknown kind %q", raw, fields[0])
	}
	if !document.ValidPartialID(fields[1]) {
		return CustomID{}, fmt.Errorf("prompt: custom ID %q has invalid partial ID", raw)
	}
	for _, field := range fields[2:] {
		if field == "" {
			return CustomID{}, fmt.Errorf("prompt: custom ID %q has an empty field", raw)
		}
	}
	return CustomID{Kind: kind, PartialID: fields[1], Extra: fields[2:]}, nil
}

// NewControl builds a button whose custom identifier targets doc. It
// panics if an extra field contains Separator; adapters only pass
// constant extras.
func NewControl(label, style string, doc document.ID, extra ...string) messaging.Control {
	customID, err := EncodeCustomID(doc.Collection, doc.PartialID, extra...)
	if err != nil {
		panic(err)
	}
	return messaging.Control{Label: label, CustomID: customID, Style: style}
}
