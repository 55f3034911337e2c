package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// verifySignature checks an HMAC-SHA256 signature of body in the given encoding
func verifySignature(body []byte, signature, secret, encoding string) bool {
	if signature == "" {
		return false
	}
	expected, ok := computeSignature(body, secret, encoding)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// computeSignature returns the encoded HMAC-SHA256 of body
func computeSignature(body []byte, secret, encoding string) (string, bool) {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	sum := h.Sum(nil)

	switch encoding {
	case "", EncodingHexPrefixed:
		return "sha256=" + hex.EncodeToString(sum), true
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(sum), true
	default:
		return "", false
	}
}
