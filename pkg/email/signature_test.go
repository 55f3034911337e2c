package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyPostmarkSignature(t *testing.T) {
	body := []byte(`{"MessageID":"abc"}`)
	valid := SignPostmark("inbound-token", body)

	tests := []struct {
		name      string
		token     string
		body      []byte
		signature string
		want      bool
	}{
		{"valid", "inbound-token", body, valid, true},
		{"empty signature", "inbound-token", body, "", false},
		{"wrong token", "other-token", body, valid, false},
		{"tampered body", "inbound-token", []byte(`{"MessageID":"abd"}`), valid, false},
		{"garbage", "inbound-token", body, "not-base64!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPostmarkSignature(tt.token, tt.body, tt.signature))
		})
	}
}

func TestSignPostmark_KnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := SignPostmark("key", []byte("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg=", got)
}
