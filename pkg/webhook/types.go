package webhook

import (
	"context"
	"time"

	"github.com/alexdong/quinn/internal/metrics"
)

// Signature encodings
const (
	// EncodingHexPrefixed is "sha256=<hex>", as sent by GitHub style senders
	EncodingHexPrefixed = "hex-prefixed"
	// EncodingBase64 is the bare base64 digest Postmark sends
	EncodingBase64 = "base64"
)

// DefaultMaxBodyBytes caps request bodies
const DefaultMaxBodyBytes = 1 << 20

// WebhookConfig defines a webhook endpoint configuration
type WebhookConfig struct {
	Path              string         // URL path (e.g., "/webhook/postmark")
	Method            string         // HTTP method (POST, GET, PUT, DELETE)
	Handler           WebhookHandler // Processing function
	Secret            string         // HMAC-SHA256 secret; empty disables verification
	SignatureHeader   string         // Header carrying the signature
	SignatureEncoding string         // EncodingHexPrefixed (default) or EncodingBase64
	Timeout           time.Duration  // Handler timeout (default: server DefaultTimeout)
	Description       string         // Human-readable description
}

// WebhookHandler processes a webhook request. ctx carries the handler deadline.
type WebhookHandler func(ctx context.Context, params WebhookParams) (WebhookResponse, error)

// WebhookParams contains parsed webhook request data
type WebhookParams struct {
	RawBody []byte            // Body exactly as received
	Body    interface{}       // Parsed request body
	Headers map[string]string // Request headers
	Query   map[string]string // Query parameters
}

// WebhookResponse defines the webhook response
type WebhookResponse struct {
	Status  int               // HTTP status code
	Body    interface{}       // Response body (will be JSON serialized)
	Headers map[string]string // Custom response headers
}

// WebhookInfo describes a registered webhook without its secret
type WebhookInfo struct {
	Path              string `json:"path"`
	Method            string `json:"method"`
	Secret            string `json:"secret,omitempty"`
	SignatureHeader   string `json:"signatureHeader,omitempty"`
	SignatureEncoding string `json:"signatureEncoding,omitempty"`
	Timeout           int64  `json:"timeout,omitempty"` // milliseconds
	Description       string `json:"description,omitempty"`
}

// WebhookMetrics tracks webhook performance metrics
type WebhookMetrics struct {
	Path                string  `json:"path"`
	Method              string  `json:"method"`
	TotalRequests       int64   `json:"totalRequests"`
	SuccessCount        int64   `json:"successCount"`
	FailureCount        int64   `json:"failureCount"`
	AverageResponseTime float64 `json:"averageResponseTime"` // milliseconds
	LastStatus          int     `json:"lastStatus,omitempty"`
	LastRequestAt       int64   `json:"lastRequestAt,omitempty"`
}

// RateLimitState tracks rate limiting per IP
type RateLimitState struct {
	Requests []int64 // Timestamps of requests in the current window
}

// ServerOptions configures the webhook server
type ServerOptions struct {
	Port               int           // Server port (default: 8000)
	Host               string        // Server host (default: "0.0.0.0")
	RateLimitPerMinute int           // Requests per minute per IP (default: 60)
	DefaultTimeout     time.Duration // Default handler timeout (default: 120s)
	MaxBodyBytes       int64         // Request body limit (default: 1 MB)
	TrustProxyHeaders  bool          // Key clients on X-Forwarded-For / X-Real-IP
	Metrics            *metrics.Metrics
}
