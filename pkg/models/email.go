package models

import (
	"net/mail"
	"strings"
	"time"
)

// EmailDirection marks whether an email was received or sent
type EmailDirection string

const (
	DirectionInbound  EmailDirection = "inbound"
	DirectionOutbound EmailDirection = "outbound"
)

// EmailAttachment is an attachment as delivered by Postmark (base64 content)
type EmailAttachment struct {
	Name          string `json:"name"`
	ContentType   string `json:"content_type"`
	Content       string `json:"content"`
	ContentLength int    `json:"content_length"`
}

// EmailMessage is a stored inbound or outbound email
type EmailMessage struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Direction      EmailDirection    `json:"direction"`
	Subject        string            `json:"subject"`
	FromEmail      string            `json:"from_email"`
	To             []string          `json:"to"`
	Cc             []string          `json:"cc"`
	Bcc            []string          `json:"bcc"`
	Text           string            `json:"text"`
	HTML           string            `json:"html"`
	Headers        map[string]string `json:"headers"`
	Attachments    []EmailAttachment `json:"attachments"`
	MailboxHash    string            `json:"mailbox_hash,omitempty"`
	InReplyTo      string            `json:"in_reply_to,omitempty"`
	References     []string          `json:"references"`
	CreatedAt      time.Time         `json:"created_at"`
}

// SenderAddress returns the bare address from the From field
func (e *EmailMessage) SenderAddress() string {
	addr, err := mail.ParseAddress(e.FromEmail)
	if err != nil {
		return strings.TrimSpace(e.FromEmail)
	}
	return addr.Address
}

// SenderName returns the display name from the From field, if any
func (e *EmailMessage) SenderName() string {
	addr, err := mail.ParseAddress(e.FromEmail)
	if err != nil {
		return ""
	}
	return addr.Name
}
