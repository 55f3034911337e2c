package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alexdong/quinn/internal/tracing"
)

// Server is the webhook HTTP server. Extra handlers such as the JSON API and
// /metrics are attached with Mount before Start.
type Server struct {
	options        ServerOptions
	mux            *http.ServeMux
	server         *http.Server
	webhooks       map[string]*WebhookConfig // key: method:path
	rateLimiter    *RateLimiter
	metricsTracker *MetricsTracker
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	webhooksMu     sync.RWMutex
	serverMu       sync.Mutex
}

// NewServer creates a new webhook server
func NewServer(options ServerOptions, logger zerolog.Logger) *Server {
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 60
	}
	if options.DefaultTimeout == 0 {
		options.DefaultTimeout = 120 * time.Second
	}
	if options.MaxBodyBytes == 0 {
		options.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		options:        options,
		mux:            http.NewServeMux(),
		webhooks:       make(map[string]*WebhookConfig),
		rateLimiter:    NewRateLimiter(options.RateLimitPerMinute),
		metricsTracker: NewMetricsTracker(options.Metrics),
		logger:         logger,
		startTime:      time.Now(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/webhooks", s.handleList)
	s.mux.HandleFunc("/webhooks/metrics", s.handleMetrics)
	s.mux.HandleFunc("/", s.handleWebhook)
	return s
}

// Mount attaches handler under pattern
func (s *Server) Mount(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
	s.logger.Debug().Str("pattern", pattern).Msg("Mounted handler")
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.options.Host, s.options.Port)
}

// Start listens on the configured address and blocks until Stop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln and blocks until Stop
func (s *Server) Serve(ln net.Listener) error {
	s.serverMu.Lock()
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.serverMu.Unlock()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting webhook server")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	return nil
}

// Stop rejects new webhooks, waits for in-flight ones until ctx is done,
// then shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down webhook server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	s.serverMu.Lock()
	srv := s.server
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown webhook server: %w", err)
	}

	s.logger.Info().Msg("Webhook server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.webhooksMu.RLock()
	webhookCount := len(s.webhooks)
	s.webhooksMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"uptime":       time.Since(s.startTime).Seconds(),
		"webhookCount": webhookCount,
		"timestamp":    time.Now().UnixMilli(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, method := r.URL.Query().Get("path"), r.URL.Query().Get("method")
	if path == "" {
		writeJSON(w, http.StatusOK, s.metricsTracker.GetMetrics())
		return
	}
	if method == "" {
		method = http.MethodPost
	}
	m := s.metricsTracker.GetMetricsForWebhook(path, strings.ToUpper(method))
	if m == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No metrics for webhook"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ListWebhooks())
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.inFlightReqs.Add(1)
	s.shutdownMu.RUnlock()
	defer s.inFlightReqs.Done()

	webhook := s.getWebhook(r.URL.Path, r.Method)
	if webhook == nil {
		s.logger.Debug().
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("Webhook not found")
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	status := s.serveWebhook(w, r, webhook)
	s.metricsTracker.Track(webhook.Path, webhook.Method, status, float64(time.Since(startTime).Milliseconds()))
}

// serveWebhook runs one registered webhook and returns the status it wrote
func (s *Server) serveWebhook(w http.ResponseWriter, r *http.Request, webhook *WebhookConfig) int {
	start := time.Now()
	ctx := tracing.NewRequestContext(r.Context())
	logger := tracing.LoggerFromContext(ctx, s.logger)
	ip := s.getClientIP(r)

	if !s.rateLimiter.CheckLimit(ip) {
		retryAfter := s.rateLimiter.GetRetryAfter(ip)
		logger.Warn().
			Str("ip", ip).
			Str("path", r.URL.Path).
			Int("retryAfter", retryAfter).
			Msg("Rate limit exceeded")

		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return http.StatusTooManyRequests
	}

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return http.StatusRequestEntityTooLarge
		}
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to read request body")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	if webhook.Secret != "" {
		header := webhook.SignatureHeader
		if header == "" {
			header = "X-Webhook-Signature"
		}
		if !verifySignature(rawBody, r.Header.Get(header), webhook.Secret, webhook.SignatureEncoding) {
			logger.Warn().
				Str("path", webhook.Path).
				Str("ip", ip).
				Msg("Invalid webhook signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return http.StatusUnauthorized
		}
	}

	params, err := parseRequest(r, rawBody)
	if err != nil {
		logger.Error().Err(err).Str("path", webhook.Path).Msg("Failed to parse request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	timeout := webhook.Timeout
	if timeout == 0 {
		timeout = s.options.DefaultTimeout
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerWebhook, "webhook "+webhook.Path, "",
		attribute.String("http.method", r.Method),
		attribute.String("http.route", webhook.Path),
	)
	response, err := s.executeHandler(ctx, webhook.Handler, params, timeout)
	tracing.EndSpan(span, err)

	if err != nil {
		logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", ip).
			Dur("duration", time.Since(start)).
			Msg("Webhook request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return http.StatusInternalServerError
	}

	if response.Status == 0 {
		response.Status = http.StatusOK
	}
	logger.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("ip", ip).
		Int("status", response.Status).
		Dur("duration", time.Since(start)).
		Msg("Webhook request completed")

	sendResponse(w, response)
	return response.Status
}

// parseRequest parses the webhook request
func parseRequest(r *http.Request, rawBody []byte) (WebhookParams, error) {
	params := WebhookParams{
		RawBody: rawBody,
		Headers: make(map[string]string),
		Query:   make(map[string]string),
	}

	for key, values := range r.Header {
		if len(values) > 0 {
			params.Headers[key] = values[0]
		}
	}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params.Query[key] = values[0]
		}
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		var body interface{}
		if len(rawBody) > 0 {
			if err := json.Unmarshal(rawBody, &body); err != nil {
				return params, fmt.Errorf("failed to parse JSON body: %w", err)
			}
		}
		params.Body = body
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(rawBody))
		if err != nil {
			return params, fmt.Errorf("failed to parse form data: %w", err)
		}
		formData := make(map[string]string)
		for key, v := range values {
			if len(v) > 0 {
				formData[key] = v[0]
			}
		}
		params.Body = formData
	default:
		params.Body = string(rawBody)
	}

	return params, nil
}

type handlerResult struct {
	response WebhookResponse
	err      error
}

// executeHandler runs handler with a deadline. A timeout yields 504.
func (s *Server) executeHandler(ctx context.Context, handler WebhookHandler, params WebhookParams, timeout time.Duration) (WebhookResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- handlerResult{err: fmt.Errorf("webhook handler panic: %v", r)}
			}
		}()
		response, err := handler(ctx, params)
		resultChan <- handlerResult{response, err}
	}()

	select {
	case result := <-resultChan:
		return result.response, result.err
	case <-ctx.Done():
		s.logger.Error().
			Dur("timeout", timeout).
			Msg("Webhook handler timed out")
		return WebhookResponse{
			Status: http.StatusGatewayTimeout,
			Body:   map[string]string{"error": "Gateway Timeout"},
		}, nil
	}
}

func sendResponse(w http.ResponseWriter, response WebhookResponse) {
	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	if response.Body == nil {
		w.WriteHeader(response.Status)
		return
	}
	writeJSON(w, response.Status, response.Body)
}

// getClientIP extracts the client IP from the request. Forwarding headers
// are only honoured behind a trusted proxy; otherwise any client could pick
// its own rate limit bucket.
func (s *Server) getClientIP(r *http.Request) string {
	if s.options.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			return strings.TrimSpace(ips[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) getWebhook(path, method string) *WebhookConfig {
	s.webhooksMu.RLock()
	defer s.webhooksMu.RUnlock()
	return s.webhooks[method+":"+path]
}

// RegisterWebhook registers a new webhook endpoint
func (s *Server) RegisterWebhook(config WebhookConfig) error {
	if !strings.HasPrefix(config.Path, "/") {
		return fmt.Errorf("webhook path must start with /")
	}

	validMethods := map[string]bool{
		http.MethodPost:   true,
		http.MethodGet:    true,
		http.MethodPut:    true,
		http.MethodDelete: true,
	}
	if !validMethods[config.Method] {
		return fmt.Errorf("invalid HTTP method: %s", config.Method)
	}
	if config.Handler == nil {
		return fmt.Errorf("webhook handler is required")
	}
	if _, ok := computeSignature(nil, "", config.SignatureEncoding); !ok {
		return fmt.Errorf("invalid signature encoding: %s", config.SignatureEncoding)
	}

	s.webhooksMu.Lock()
	s.webhooks[config.Method+":"+config.Path] = &config
	s.webhooksMu.Unlock()

	s.logger.Info().
		Str("path", config.Path).
		Str("method", config.Method).
		Bool("signed", config.Secret != "").
		Msg("Webhook registered")
	return nil
}

// ListWebhooks returns all registered webhooks with secrets redacted
func (s *Server) ListWebhooks() []WebhookInfo {
	s.webhooksMu.RLock()
	defer s.webhooksMu.RUnlock()

	entries := make([]WebhookInfo, 0, len(s.webhooks))
	for _, webhook := range s.webhooks {
		entry := WebhookInfo{
			Path:              webhook.Path,
			Method:            webhook.Method,
			SignatureHeader:   webhook.SignatureHeader,
			SignatureEncoding: webhook.SignatureEncoding,
			Timeout:           webhook.Timeout.Milliseconds(),
			Description:       webhook.Description,
		}
		if webhook.Secret != "" {
			entry.Secret = "[REDACTED]"
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Method+":"+entries[i].Path < entries[j].Method+":"+entries[j].Path
	})
	return entries
}
