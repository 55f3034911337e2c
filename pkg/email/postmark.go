package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/alexdong/quinn/internal/metrics"
	"github.com/alexdong/quinn/internal/tracing"
	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
)

// DefaultEndpoint is the Postmark single-email API
const DefaultEndpoint = "https://api.postmarkapp.com/email"

const maxRetryDelay = 10 * time.Second

// Recorder stores sent emails
type Recorder interface {
	CreateEmail(ctx context.Context, e *models.EmailMessage) error
}

// RecorderFunc adapts a function to Recorder
type RecorderFunc func(ctx context.Context, e *models.EmailMessage) error

func (f RecorderFunc) CreateEmail(ctx context.Context, e *models.EmailMessage) error {
	return f(ctx, e)
}

// ManagerRecorder records into the store m holds at send time, which
// changes after ResetAll
func ManagerRecorder(m *conversation.Manager) Recorder {
	return RecorderFunc(func(ctx context.Context, e *models.EmailMessage) error {
		return m.Store().CreateEmail(ctx, e)
	})
}

// PostmarkConfig configures a PostmarkClient
type PostmarkConfig struct {
	Endpoint    string
	ServerToken string
	// Retries is the number of extra attempts after a failed send
	Retries int
	// SendsPerSecond throttles outbound mail; zero means unlimited
	SendsPerSecond float64
	HTTPClient     *http.Client
	Recorder       Recorder
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// PostmarkClient sends emails through the Postmark API
type PostmarkClient struct {
	endpoint string
	token    string
	retries  int
	http     *http.Client
	limiter  *rate.Limiter
	recorder Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPostmarkClient creates a client
func NewPostmarkClient(cfg PostmarkConfig) *PostmarkClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if cfg.SendsPerSecond > 0 {
		limit = rate.Limit(cfg.SendsPerSecond)
	}
	return &PostmarkClient{
		endpoint: cfg.Endpoint,
		token:    cfg.ServerToken,
		retries:  cfg.Retries,
		http:     cfg.HTTPClient,
		limiter:  rate.NewLimiter(limit, 1),
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryDelay is the wait before retry attempt n (1-based): min(2^n, 10) seconds
func RetryDelay(n int) time.Duration {
	d := time.Duration(math.Pow(2, float64(n))) * time.Second
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

type postmarkHeaderOut struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type outboundPayload struct {
	From     string              `json:"From"`
	To       string              `json:"To"`
	Cc       string              `json:"Cc"`
	Bcc      string              `json:"Bcc"`
	Subject  string              `json:"Subject"`
	TextBody string              `json:"TextBody"`
	HtmlBody string              `json:"HtmlBody"`
	Headers  []postmarkHeaderOut `json:"Headers"`
}

func buildPayload(e *models.EmailMessage) outboundPayload {
	headers := make([]postmarkHeaderOut, 0, len(e.Headers))
	for k, v := range e.Headers {
		headers = append(headers, postmarkHeaderOut{Name: k, Value: v})
	}
	return outboundPayload{
		From:     e.FromEmail,
		To:       strings.Join(e.To, ","),
		Cc:       strings.Join(e.Cc, ","),
		Bcc:      strings.Join(e.Bcc, ","),
		Subject:  e.Subject,
		TextBody: e.Text,
		HtmlBody: e.HTML,
		Headers:  headers,
	}
}

// Send posts the email to Postmark, retrying failures, and stores it once accepted
func (c *PostmarkClient) Send(ctx context.Context, e *models.EmailMessage) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerEmail, "email.send", "",
		attribute.String("email.id", e.ID),
		attribute.String("email.conversation_id", e.ConversationID),
	)
	defer func() {
		c.metrics.RecordEmail(err)
		tracing.EndSpan(span, err)
	}()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	body, err := json.Marshal(buildPayload(e))
	if err != nil {
		return errors.Wrap(err, "encode postmark payload")
	}

	for attempt := 0; ; attempt++ {
		if err = c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "send aborted")
		}

		logger.Info().Str("email_id", e.ID).Int("attempt", attempt+1).Msg("Sending email")
		err = c.post(ctx, body)
		if err == nil {
			break
		}
		if attempt >= c.retries {
			logger.Error().Err(err).Str("email_id", e.ID).Msg("Email send failed")
			return err
		}

		delay := RetryDelay(attempt + 1)
		logger.Warn().Err(err).Dur("delay", delay).Msg("Email send failed, retrying")
		if serr := c.sleep(ctx, delay); serr != nil {
			return errors.WithSecondaryError(errors.Wrap(serr, "send aborted"), err)
		}
	}

	if c.recorder != nil {
		if err = c.recorder.CreateEmail(ctx, e); err != nil {
			return errors.Wrap(err, "store sent email")
		}
	}
	return nil
}

func (c *PostmarkClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("postmark returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
