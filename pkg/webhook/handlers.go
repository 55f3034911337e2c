package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/alexdong/quinn/pkg/email"
	"github.com/alexdong/quinn/pkg/models"
)

// PostmarkPath is the inbound email route
const PostmarkPath = "/webhook/postmark"

// InboundProcessor handles a raw Postmark inbound body
type InboundProcessor interface {
	HandleInbound(ctx context.Context, body []byte) (*models.EmailMessage, error)
}

// PostmarkHandlerOptions configures the Postmark inbound webhook
type PostmarkHandlerOptions struct {
	// InboundToken enables X-Postmark-Signature verification when set
	InboundToken string
	Processor    InboundProcessor
	Timeout      time.Duration
	Logger       zerolog.Logger
}

// CreatePostmarkHandler creates the Postmark inbound webhook. A disallowed
// sender is answered with 403 and a malformed payload with 400.
func CreatePostmarkHandler(options PostmarkHandlerOptions) WebhookConfig {
	handler := func(ctx context.Context, params WebhookParams) (WebhookResponse, error) {
		reply, err := options.Processor.HandleInbound(ctx, params.RawBody)
		switch {
		case errors.Is(err, email.ErrSenderNotAllowed):
			options.Logger.Warn().Err(err).Msg("Rejected inbound email")
			return WebhookResponse{
				Status: http.StatusForbidden,
				Body:   map[string]string{"error": "Sender not allowed"},
			}, nil
		case errors.Is(err, email.ErrInvalidPayload):
			return WebhookResponse{
				Status: http.StatusBadRequest,
				Body:   map[string]string{"error": err.Error()},
			}, nil
		case err != nil:
			return WebhookResponse{}, err
		}

		return WebhookResponse{
			Status: http.StatusOK,
			Body:   map[string]string{"status": "ok", "reply_id": reply.ID},
		}, nil
	}

	return CreateCustomHandler(PostmarkPath, http.MethodPost, handler,
		WithSecret(options.InboundToken, EncodingBase64, "X-Postmark-Signature"),
		WithTimeout(options.Timeout),
		WithDescription("Postmark inbound email"),
	)
}

// CreateCustomHandler creates a webhook from a handler and options
func CreateCustomHandler(path, method string, handler WebhookHandler, options ...func(*WebhookConfig)) WebhookConfig {
	config := WebhookConfig{
		Path:    path,
		Method:  method,
		Handler: handler,
	}
	for _, opt := range options {
		opt(&config)
	}
	return config
}

// WithSecret enables signature verification
func WithSecret(secret, encoding, header string) func(*WebhookConfig) {
	return func(config *WebhookConfig) {
		config.Secret = secret
		config.SignatureEncoding = encoding
		config.SignatureHeader = header
	}
}

// WithTimeout sets the webhook handler timeout
func WithTimeout(timeout time.Duration) func(*WebhookConfig) {
	return func(config *WebhookConfig) {
		config.Timeout = timeout
	}
}

// WithDescription sets the webhook description
func WithDescription(description string) func(*WebhookConfig) {
	return func(config *WebhookConfig) {
		config.Description = description
	}
}
