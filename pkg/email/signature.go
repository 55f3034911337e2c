package email

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/cockroachdb/errors"
)

// ErrInvalidSignature is returned when a webhook body fails HMAC verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignPostmark returns base64(HMAC-SHA256(token, body))
func SignPostmark(token string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyPostmarkSignature checks signature against body in constant time
func VerifyPostmarkSignature(token string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := SignPostmark(token, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
