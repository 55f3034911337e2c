package email

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/alexdong/quinn/pkg/models"
)

// NewMessageID returns an RFC 5322 message id in the quinn.email domain
func NewMessageID() string {
	return "<" + uuid.New().String() + "@quinn.email>"
}

// FormatReply builds the reply to original, threaded with In-Reply-To and References
func FormatReply(original *models.EmailMessage, text, from, html string) *models.EmailMessage {
	headers := make(map[string]string, len(original.Headers)+2)
	for k, v := range original.Headers {
		headers[k] = v
	}
	refs := append(append([]string{}, original.References...), original.ID)
	headers["In-Reply-To"] = original.ID
	headers["References"] = strings.Join(refs, " ")

	return &models.EmailMessage{
		ID:             NewMessageID(),
		ConversationID: original.ConversationID,
		Direction:      models.DirectionOutbound,
		Subject:        "Re: " + original.Subject,
		FromEmail:      from,
		To:             []string{original.SenderAddress()},
		Cc:             append([]string(nil), original.Cc...),
		Bcc:            append([]string(nil), original.Bcc...),
		Text:           text,
		HTML:           html,
		Headers:        headers,
		MailboxHash:    original.MailboxHash,
		InReplyTo:      original.ID,
		References:     refs,
		CreatedAt:      time.Now().UTC(),
	}
}

// RenderHTML converts a markdown reply into an HTML body
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
