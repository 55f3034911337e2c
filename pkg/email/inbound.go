package email

import (
	_ "embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/alexdong/quinn/pkg/models"
)

var (
	// ErrInvalidPayload is returned for webhook bodies that fail the inbound schema
	ErrInvalidPayload = errors.New("invalid inbound payload")
	// ErrSenderNotAllowed is returned when the sender is not on the allow list
	ErrSenderNotAllowed = errors.New("Sender not allowed")
)

//go:embed inbound_schema.json
var inboundSchemaJSON string

var inboundSchema = gojsonschema.NewStringLoader(inboundSchemaJSON)

type postmarkHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type postmarkAttachment struct {
	Name          string `json:"Name"`
	ContentType   string `json:"ContentType"`
	Content       string `json:"Content"`
	ContentLength int    `json:"ContentLength"`
}

// inboundPayload is the subset of the Postmark inbound webhook that Quinn reads
type inboundPayload struct {
	MessageID   string               `json:"MessageID"`
	From        string               `json:"From"`
	To          string               `json:"To"`
	Cc          string               `json:"Cc"`
	Bcc         string               `json:"Bcc"`
	Subject     string               `json:"Subject"`
	TextBody    string               `json:"TextBody"`
	HtmlBody    string               `json:"HtmlBody"`
	MailboxHash string               `json:"MailboxHash"`
	Headers     []postmarkHeader     `json:"Headers"`
	Attachments []postmarkAttachment `json:"Attachments"`
}

// validateSchema checks payload against the embedded inbound schema
func validateSchema(payload []byte) error {
	result, err := gojsonschema.Validate(inboundSchema, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "schema validation error"), ErrInvalidPayload)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Mark(errors.Newf("schema validation errors: %s", strings.Join(msgs, "; ")), ErrInvalidPayload)
	}
	return nil
}

func splitAddresses(field string) []string {
	var out []string
	for _, addr := range strings.Split(field, ";") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// ParseInbound decodes a Postmark inbound webhook body. A nil allowedSenders
// accepts every sender.
func ParseInbound(payload []byte, allowedSenders []string) (*models.EmailMessage, error) {
	if err := validateSchema(payload); err != nil {
		return nil, err
	}

	var in inboundPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode inbound payload"), ErrInvalidPayload)
	}

	email := &models.EmailMessage{
		ID:             in.MessageID,
		ConversationID: in.MailboxHash,
		Direction:      models.DirectionInbound,
		Subject:        in.Subject,
		FromEmail:      in.From,
		To:             splitAddresses(in.To),
		Cc:             splitAddresses(in.Cc),
		Bcc:            splitAddresses(in.Bcc),
		Text:           in.TextBody,
		HTML:           in.HtmlBody,
		Headers:        make(map[string]string, len(in.Headers)),
		MailboxHash:    in.MailboxHash,
		CreatedAt:      time.Now().UTC(),
	}

	if allowedSenders != nil {
		sender := email.SenderAddress()
		allowed := false
		for _, a := range allowedSenders {
			if strings.EqualFold(strings.TrimSpace(a), sender) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, errors.Wrapf(ErrSenderNotAllowed, "sender %s", sender)
		}
	}

	for _, h := range in.Headers {
		email.Headers[h.Name] = h.Value
	}
	email.InReplyTo = email.Headers["In-Reply-To"]
	email.References = strings.Fields(email.Headers["References"])

	for _, a := range in.Attachments {
		email.Attachments = append(email.Attachments, models.EmailAttachment{
			Name:          a.Name,
			ContentType:   a.ContentType,
			Content:       a.Content,
			ContentLength: a.ContentLength,
		})
	}

	return email, nil
}

// ParseAllowedSenders splits a comma separated allow list. An empty string
// yields nil, which allows everyone.
func ParseAllowedSenders(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BuildThreadContext renders the thread as "sender: text" entries, oldest
// first, with the new email last
func BuildThreadContext(latest *models.EmailMessage, history []*models.EmailMessage) string {
	parts := make([]string, 0, len(history)+1)
	for _, msg := range history {
		parts = append(parts, msg.SenderAddress()+": "+msg.Text)
	}
	parts = append(parts, latest.SenderAddress()+": "+latest.Text)
	return strings.Join(parts, "\n\n")
}
