package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw webhook body
// against the signature header value.
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expectedSignature := hex.EncodeToString(h.Sum(nil))

	return strings.EqualFold(expectedSignature, signature)
}
