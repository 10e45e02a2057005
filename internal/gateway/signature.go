package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// canonicalPayload renders the signed fields as a canonical JSON object.
// Key order and formatting are fixed by construction so both sides hash
// identical bytes; a generic JSON encoder gives no such guarantee.
func canonicalPayload(gameID, player string, startTime, endTime, timestamp int64) []byte {
	return []byte(fmt.Sprintf(
		`{"gameId":%q,"playerAddress":%q,"startTime":%d,"endTime":%d,"timestamp":%d}`,
		gameID, player, startTime, endTime, timestamp))
}

// Sign computes the hex-encoded HMAC-SHA256 over the canonical payload.
// Exported for clients and tests; the server only verifies.
func Sign(secret []byte, gameID, player string, startTime, endTime, timestamp int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonicalPayload(gameID, player, startTime, endTime, timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks a hex-encoded HMAC in constant time.
func verifySignature(secret []byte, signature, gameID, player string, startTime, endTime, timestamp int64) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(canonicalPayload(gameID, player, startTime, endTime, timestamp))
	return hmac.Equal(got, mac.Sum(nil))
}
