// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/gatekeeper/lib/document"
)

// tagBytes is the number of digest bytes kept in a token's tag.
const tagBytes = 6

// EncodeToken returns the metadata token embedded in a prompt for the
// document with the given partial id: "partialId.tag", where tag is a
// truncated BLAKE3 digest over the kind and the partial id. The tag
// lets resync tell a prompt of this kind apart from foreign or
// corrupted content.
func EncodeToken(kind document.Kind, partialID string) string {
	return partialID + "." + tokenTag(kind, partialID)
}

// DecodeToken returns the partial id carried by token, or false if the
// token is malformed or was not issued for kind.
func DecodeToken(kind document.Kind, token string) (string, bool) {
	partialID, tag, found := strings.Cut(token, ".")
	if !found || !document.ValidPartialID(partialID) {
		return "", false
	}
	expected := tokenTag(kind, partialID)
	if subtle.ConstantTimeCompare([]byte(tag), []byte(expected)) != 1 {
		return "", false
	}
	return partialID, true
}

func tokenTag(kind document.Kind, partialID string) string {
	hasher := blake3.New()
	hasher.Write([]byte(kind))
	hasher.Write([]byte{0})
	hasher.Write([]byte(partialID))
	digest := hasher.Sum(nil)
	return hex.EncodeToString(digest[:tagBytes])
}
