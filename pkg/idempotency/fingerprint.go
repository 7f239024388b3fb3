// Package idempotency detects inbound events that were already accepted.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// FingerprintLength is the number of hex characters kept from the digest.
const FingerprintLength = 32

var (
	ErrEmptyEventID   = errors.New("event id is required")
	ErrInvalidPayload = errors.New("payload must be a JSON object")
)

var (
	baseFields   = []string{"id", "type", "created", "livemode"}
	amountFields = []string{"amount", "status"}
)

// Fingerprint hashes the canonical subset of an event payload. Go marshals
// map keys in sorted order, so equal subsets always produce equal digests.
func Fingerprint(payload json.RawMessage) (string, error) {
	var doc map[string]any

	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		return "", ErrInvalidPayload
	}

	canonical := make(map[string]any, len(baseFields)+len(amountFields))

	for _, field := range baseFields {
		if value, ok := doc[field]; ok {
			canonical[field] = value
		}
	}

	object := dataObject(doc)
	if _, hasAmount := lookup(doc, object, "amount"); hasAmount {
		for _, field := range amountFields {
			if value, ok := lookup(doc, object, field); ok {
				canonical[field] = value
			}
		}
	}

	encoded, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode canonical payload: %w", err)
	}

	sum := sha256.Sum256(encoded)

	return hex.EncodeToString(sum[:])[:FingerprintLength], nil
}

// dataObject returns data.object for provider-style envelopes.
func dataObject(doc map[string]any) map[string]any {
	data, _ := doc["data"].(map[string]any)
	object, _ := data["object"].(map[string]any)

	return object
}

func lookup(doc, object map[string]any, field string) (any, bool) {
	if value, ok := doc[field]; ok {
		return value, true
	}

	value, ok := object[field]

	return value, ok
}
