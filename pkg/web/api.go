// Package web serves the JSON API over the conversation manager.
package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/alexdong/quinn/internal/tracing"
	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
)

const maxRequestBytes = 1 << 20

// Config configures the API
type Config struct {
	// DefaultModel is used when a request names no model; empty means
	// conversation.DefaultModel
	DefaultModel string
	// AllowReset enables POST /api/reset. Even then only loopback clients
	// may reset.
	AllowReset bool
}

// API exposes the web user's conversations. Conversations of other users
// are answered with 404.
type API struct {
	manager      *conversation.Manager
	defaultModel string
	allowReset   bool
	logger       zerolog.Logger
}

// NewAPI creates the API
func NewAPI(manager *conversation.Manager, cfg Config, logger zerolog.Logger) *API {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = conversation.DefaultModel
	}
	return &API{manager: manager, defaultModel: cfg.DefaultModel, allowReset: cfg.AllowReset, logger: logger}
}

// Routes returns a handler for every /api route
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/models", a.handleModels)
	mux.HandleFunc("GET /api/conversations", a.handleList)
	mux.HandleFunc("POST /api/conversations", a.handleCreate)
	mux.HandleFunc("GET /api/conversations/{id}", a.handleGet)
	mux.HandleFunc("POST /api/conversations/{id}/messages", a.handleContinue)
	mux.HandleFunc("POST /api/reset", a.handleReset)
	return mux
}

type messageRequest struct {
	UserInput string `json:"user_input"`
	Model     string `json:"model"`
}

type conversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decode(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return errors.Wrap(err, "read request body")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Mark(errors.Newf("Invalid JSON body: %v", err), agent.ErrInvalidInput)
	}
	return nil
}

// requestContext tags the request for tracing and channel metrics
func requestContext(r *http.Request) context.Context {
	ctx := tracing.NewRequestContext(r.Context())
	return conversation.WithChannel(ctx, "web")
}

// fail maps domain errors to HTTP statuses
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, agent.ErrInvalidInput), errors.Is(err, conversation.ErrUnsupportedModel):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, conversation.ErrNotFound):
		status, msg = http.StatusNotFound, "Conversation not found"
	}

	logger := tracing.LoggerFromContext(r.Context(), a.logger)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("API request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("API request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func (a *API) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":  conversation.AvailableModels(),
		"default": a.defaultModel,
	})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	convs, err := a.manager.ListConversations(requestContext(r), conversation.WebUserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := a.manager.ConversationForUser(requestContext(r), r.PathValue("id"), conversation.WebUserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	msgs := conv.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: conv, Messages: msgs})
}

func (a *API) model(req messageRequest) string {
	if req.Model == "" {
		return a.defaultModel
	}
	return req.Model
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	result, err := a.manager.CreateNew(requestContext(r), conversation.WebUserID, req.UserInput, a.model(req))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	result, err := a.manager.Continue(requestContext(r), r.PathValue("id"), conversation.WebUserID, req.UserInput, a.model(req))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// isLoopback reports whether the request's peer address is a loopback
// address. Forwarding headers are ignored.
func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if !a.allowReset || !isLoopback(r) {
		logger := tracing.LoggerFromContext(r.Context(), a.logger)
		logger.Warn().
			Str("remote_addr", r.RemoteAddr).
			Bool("enabled", a.allowReset).
			Msg("Rejected reset request")
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "Reset is not allowed"})
		return
	}

	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if !req.Confirm {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `Reset requires {"confirm": true}`})
		return
	}

	if err := a.manager.ResetAll(requestContext(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.Warn().Msg("All conversations reset through the API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
