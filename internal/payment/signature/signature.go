// Package signature implements the gateway's HMAC-SHA256 signature scheme
// for client checkout assertions and webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrMissingSecret = errors.New("signature_secret_missing")

// Compute returns the lowercase hex HMAC-SHA256 of message under secret.
func Compute(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayment checks the signature the checkout widget hands back to the
// client, computed over "<gateway order id>|<gateway payment id>".
func VerifyPayment(keySecret, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	if keySecret == "" {
		return false, ErrMissingSecret
	}
	expected := Compute(keySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
	return equal(expected, signature), nil
}

// VerifyWebhook checks a delivery signature over the exact raw body. The
// body must not be re-encoded before this call.
func VerifyWebhook(webhookSecret string, rawBody []byte, signature string) (bool, error) {
	if webhookSecret == "" {
		return false, ErrMissingSecret
	}
	expected := Compute(webhookSecret, rawBody)
	return equal(expected, signature), nil
}

// equal compares byte for byte. Signatures are lowercase hex, so a case
// change in any character is a mismatch.
func equal(expected, provided string) bool {
	if len(provided) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(provided))
}
