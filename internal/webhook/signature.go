package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// GenerateSignedPayload serializes event as canonical JSON and signs it with HMAC-SHA256.
// secret is hex-encoded; timestamp is a Unix timestamp in seconds.
func GenerateSignedPayload(secret string, event WebhookEvent, timestamp int64) (payload []byte, signature string, err error) {
	key, err := hex.DecodeString(secret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode hex secret: %w", err)
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal event: %w", err)
	}

	// Canonical form so that receivers re-serializing the body compute the same digest
	payload, err = jcs.Transform(raw)
	if err != nil {
		return nil, "", fmt.Errorf("failed to canonicalize event: %w", err)
	}

	// Create signature payload: {timestamp}.{event_id}.{json_body}
	signaturePayload := fmt.Sprintf("%d.%s.%s", timestamp, event.EventID, string(payload))

	h := hmac.New(sha256.New, key)
	h.Write([]byte(signaturePayload))

	// Format: "sha256=<hex_signature>"
	signature = "sha256=" + hex.EncodeToString(h.Sum(nil))

	return payload, signature, nil
}

// VerifySignature checks a signature produced by GenerateSignedPayload
func VerifySignature(secret string, eventID string, payload []byte, timestamp int64, signature string) bool {
	key, err := hex.DecodeString(secret)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(fmt.Sprintf("%d.%s.%s", timestamp, eventID, string(payload))))
	expected := "sha256=" + hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
