package billing

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifyPaystackWebhookSignature checks the x-paystack-signature header: the
// lowercase hex HMAC-SHA512 of the raw request body keyed by the secret key.
// payload must be the body exactly as received.
func VerifyPaystackWebhookSignature(payload []byte, signatureHeader, secretKey string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(secretKey)
	if sig == "" || secret == "" {
		return false
	}

	return verifyHMAC(payload, []byte(sig), []byte(secret), sha512.New)
}

// SignPaystackPayload returns the signature header value for payload.
func SignPaystackPayload(payload []byte, secretKey string) string {
	mac := hmac.New(sha512.New, []byte(strings.TrimSpace(secretKey)))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHMAC compares the hex digest byte for byte; hex.EncodeToString is
// always lowercase, so upper-cased headers do not match.
func verifyHMAC(payload, expectedHex, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), expectedHex)
}
