package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// The record helpers are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// LLM metrics
	LLMCallsTotal   *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec
	LLMTokensTotal  *prometheus.CounterVec
	LLMCostUSDTotal *prometheus.CounterVec
	LLMRetriesTotal *prometheus.CounterVec

	// Response cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Conversation metrics
	ConversationsCreatedTotal  prometheus.Counter
	ConversationsArchivedTotal prometheus.Counter
	MessagesTotal              *prometheus.CounterVec

	// Webhook metrics
	WebhookRequestsTotal *prometheus.CounterVec

	// Email metrics
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quinn_llm_calls_total",
				Help: "Total number of LLM calls",
			},
			[]string{"model", "status"},
		),
		LLMCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quinn_llm_call_duration_seconds",
				Help:    "Duration of LLM calls in seconds, retries included",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 300},
			},
			[]string{"model"},
		),
		LLMTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quinn_llm_tokens_total",
				Help: "Total tokens consumed by kind (input, output, cached)",
			},
			[]string{"model", "kind"},
		),
		LLMCostUSDTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quinn_llm_cost_usd_total",
				Help: "Total LLM spend in USD",
			},
			[]string{"model"},
		),
		LLMRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quinn_llm_retries_total",
				Help: "Total number of LLM call retries",
			},
			[]string{"model"},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quinn_response_cache_hits_total",
				Help: "Total number of response cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quinn_response_cache_misses_total",
				Help: "Total number of response cache misses",
			},
		),

		ConversationsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quinn_conversations_created_total",
				Help: "Total number of conversations created",
			},
		),
		ConversationsArchivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quinn_conversations_archived_total",
				Help: "Total number of conversations archived",
			},
		),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quinn_messages_total",
				Help: "Total number of messages by channel",
			},
			[]string{"channel"},
		),

		WebhookRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quinn_webhook_requests_total",
				Help: "Total number of webhook requests by path and status code",
			},
			[]string{"path", "status"},
		),

		EmailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quinn_emails_sent_total",
				Help: "Total number of emails sent through Postmark",
			},
		),
		EmailsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quinn_emails_failed_total",
				Help: "Total number of failed email sends",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.LLMCallsTotal)
	m.registry.MustRegister(m.LLMCallDuration)
	m.registry.MustRegister(m.LLMTokensTotal)
	m.registry.MustRegister(m.LLMCostUSDTotal)
	m.registry.MustRegister(m.LLMRetriesTotal)

	m.registry.MustRegister(m.CacheHitsTotal)
	m.registry.MustRegister(m.CacheMissesTotal)

	m.registry.MustRegister(m.ConversationsCreatedTotal)
	m.registry.MustRegister(m.ConversationsArchivedTotal)
	m.registry.MustRegister(m.MessagesTotal)

	m.registry.MustRegister(m.WebhookRequestsTotal)

	m.registry.MustRegister(m.EmailsSentTotal)
	m.registry.MustRegister(m.EmailsFailedTotal)
}

// RecordLLMCall records one response generation, successful or not
func (m *Metrics) RecordLLMCall(model string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.LLMCallsTotal.WithLabelValues(model, status).Inc()
	m.LLMCallDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// RecordUsage records token counts and spend for a successful call
func (m *Metrics) RecordUsage(model string, input, output, cached int, costUSD float64) {
	if m == nil {
		return
	}
	m.LLMTokensTotal.WithLabelValues(model, "input").Add(float64(input))
	m.LLMTokensTotal.WithLabelValues(model, "output").Add(float64(output))
	m.LLMTokensTotal.WithLabelValues(model, "cached").Add(float64(cached))
	m.LLMCostUSDTotal.WithLabelValues(model).Add(costUSD)
}

// RecordRetry counts one retried LLM attempt
func (m *Metrics) RecordRetry(model string) {
	if m == nil {
		return
	}
	m.LLMRetriesTotal.WithLabelValues(model).Inc()
}

// RecordCache counts a response cache lookup
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordMessage counts a stored exchange on channel (cli, web, email, mcp)
func (m *Metrics) RecordMessage(channel string, newConversation bool) {
	if m == nil {
		return
	}
	if newConversation {
		m.ConversationsCreatedTotal.Inc()
	}
	m.MessagesTotal.WithLabelValues(channel).Inc()
}

// RecordArchived counts conversations moved to archived
func (m *Metrics) RecordArchived(n int) {
	if m == nil {
		return
	}
	m.ConversationsArchivedTotal.Add(float64(n))
}

// RecordWebhook counts a webhook request by path and HTTP status code
func (m *Metrics) RecordWebhook(path, status string) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(path, status).Inc()
}

// RecordEmail counts an outbound email attempt
func (m *Metrics) RecordEmail(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EmailsFailedTotal.Inc()
		return
	}
	m.EmailsSentTotal.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
