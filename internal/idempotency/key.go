package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	keyRoot      = "idempotency"
	keySeparator = ":"
	lockSuffix   = ":lock"
)

// DeriveKey builds the storage key for a raw client key. A blank prefix
// collapses to the two-segment form.
func DeriveKey(prefix, rawKey string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return keyRoot + keySeparator + rawKey
	}
	return keyRoot + keySeparator + prefix + keySeparator + rawKey
}

// LockKey returns the lock marker key for a storage key.
func LockKey(storageKey string) string {
	return storageKey + lockSuffix
}

// FingerprintFunc yields the request fingerprint. ok is false when the request
// carries no payload.
type FingerprintFunc func() (fp string, ok bool, err error)

// Fingerprint returns the hex SHA-256 of body. A nil body has no fingerprint.
func Fingerprint(body []byte) (string, bool) {
	if body == nil {
		return "", false
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), true
}

// FingerprintJSON fingerprints the JSON encoding of payload.
func FingerprintJSON(payload any) FingerprintFunc {
	return func() (string, bool, error) {
		if payload == nil {
			return "", false, nil
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", false, fmt.Errorf("encode request payload: %w", err)
		}
		fp, ok := Fingerprint(raw)
		return fp, ok, nil
	}
}

// FingerprintBody fingerprints a raw request body. JSON documents are
// canonicalized first so key order and whitespace do not matter; an empty
// body has no fingerprint.
func FingerprintBody(body []byte) FingerprintFunc {
	return func() (string, bool, error) {
		if len(bytes.TrimSpace(body)) == 0 {
			return "", false, nil
		}
		fp, ok := Fingerprint(CanonicalJSON(body))
		return fp, ok, nil
	}
}

// CanonicalJSON re-encodes a JSON document with sorted object keys and no
// insignificant whitespace. Input that is not valid JSON is returned unchanged.
func CanonicalJSON(raw []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return raw
	}
	if dec.More() {
		return raw
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return out
}
