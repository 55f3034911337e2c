package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
	"github.com/alexdong/quinn/pkg/store"
)

type stubResponder struct {
	models []string
}

func (s *stubResponder) GenerateResponse(ctx context.Context, req agent.Request) (*models.Message, error) {
	s.models = append(s.models, req.Config.Model)
	msg := models.NewMessage(req.ConversationID, req.UserContent)
	msg.AssistantContent = "Why do you think that?"
	msg.Metadata = &models.MessageMetrics{TokensUsed: 20, CostUSD: 0.001, ModelUsed: req.Config.Model}
	return msg, nil
}

func newTestAPI(t *testing.T) (*httptest.Server, *conversation.Manager, *stubResponder) {
	t.Helper()
	return newTestAPIWithConfig(t, Config{AllowReset: true})
}

func newTestAPIWithConfig(t *testing.T, cfg Config) (*httptest.Server, *conversation.Manager, *stubResponder) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "quinn.db"), Logger: zerolog.Nop()})
	require.NoError(t, err)

	responder := &stubResponder{}
	mgr := conversation.NewManager(conversation.Options{Store: s, Responder: responder, Logger: zerolog.Nop()})
	require.NoError(t, mgr.Setup(context.Background()))
	t.Cleanup(func() { mgr.Store().Close() })

	srv := httptest.NewServer(NewAPI(mgr, cfg, zerolog.Nop()).Routes())
	t.Cleanup(srv.Close)
	return srv, mgr, responder
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestModels(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/models", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "claude-sonnet-4", body["default"])
	assert.Contains(t, body["models"], "gpt-4o-mini")
}

func TestCreateAndContinue(t *testing.T) {
	srv, mgr, responder := newTestAPI(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/conversations", map[string]string{
		"user_input": "I keep second guessing my database schema",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conv := body["conversation"].(map[string]interface{})
	msg := body["message"].(map[string]interface{})
	id := conv["id"].(string)
	assert.Equal(t, conversation.WebUserID, conv["user_id"])
	assert.Equal(t, float64(1), conv["message_count"])
	assert.Equal(t, "Why do you think that?", msg["assistant_content"])
	assert.Equal(t, []string{"claude-sonnet-4"}, responder.models)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/conversations/"+id+"/messages", map[string]string{
		"user_input": "Because the joins are slow",
		"model":      "gpt-4o-mini",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv = body["conversation"].(map[string]interface{})
	assert.Equal(t, float64(2), conv["message_count"])
	assert.Equal(t, "gpt-4o-mini", responder.models[1])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/conversations/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "Because the joins are slow", msgs[1].(map[string]interface{})["user_content"])

	stored, err := mgr.Messages(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestList(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["conversations"])

	for _, input := range []string{"first topic", "second topic"} {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/conversations", map[string]string{"user_input": input})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/conversations", nil)
	assert.Len(t, body["conversations"], 2)
}

func TestErrors(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		errMsg string
	}{
		{"empty input", http.MethodPost, "/api/conversations", map[string]string{"user_input": "  "}, http.StatusBadRequest, "User input is required"},
		{"unknown model", http.MethodPost, "/api/conversations", map[string]string{"user_input": "hi", "model": "gpt-2"}, http.StatusBadRequest, "Unsupported model 'gpt-2'"},
		{"missing conversation", http.MethodGet, "/api/conversations/nope", nil, http.StatusNotFound, "Conversation not found"},
		{"continue missing", http.MethodPost, "/api/conversations/nope/messages", map[string]string{"user_input": "hi"}, http.StatusNotFound, "Conversation not found"},
		{"reset unconfirmed", http.MethodPost, "/api/reset", map[string]bool{"confirm": false}, http.StatusBadRequest, "confirm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body["error"], tt.errMsg)
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	srv, _, _ := newTestAPI(t)

	resp, err := http.Post(srv.URL+"/api/conversations", "application/json", bytes.NewBufferString(`{"user_input":`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReset(t *testing.T) {
	srv, mgr, _ := newTestAPI(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/conversations", map[string]string{"user_input": "something"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/reset", map[string]bool{"confirm": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reset", body["status"])

	convs, err := mgr.ListConversations(context.Background(), conversation.WebUserID)
	require.NoError(t, err)
	assert.Empty(t, convs)

	_, err = mgr.Store().GetUser(context.Background(), conversation.WebUserID)
	assert.NoError(t, err)
}

func TestOtherUsersConversation(t *testing.T) {
	srv, mgr, responder := newTestAPI(t)
	ctx := context.Background()

	result, err := mgr.CreateNew(ctx, conversation.CLIUserID, "private terminal thoughts", "")
	require.NoError(t, err)
	id := result.Conversation.ID

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Conversation not found", body["error"])
	assert.NotContains(t, body, "messages")

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/conversations/"+id+"/messages", map[string]string{"user_input": "hijack"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Conversation not found", body["error"])

	msgs, err := mgr.Messages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Len(t, responder.models, 1)

	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/conversations", nil)
	assert.Empty(t, body["conversations"])
}

func TestResetDisabled(t *testing.T) {
	srv, mgr, _ := newTestAPIWithConfig(t, Config{})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/conversations", map[string]string{"user_input": "keep me"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/reset", map[string]bool{"confirm": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Reset is not allowed", body["error"])

	convs, err := mgr.ListConversations(context.Background(), conversation.WebUserID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestResetFromRemoteAddress(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		status     int
	}{
		{"remote client", "203.0.113.5:1234", "", http.StatusForbidden},
		{"remote client claiming loopback", "203.0.113.5:1234", "127.0.0.1", http.StatusForbidden},
		{"ipv4 loopback", "127.0.0.1:1234", "", http.StatusOK},
		{"ipv6 loopback", "[::1]:1234", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mgr, _ := newTestAPI(t)
			api := NewAPI(mgr, Config{AllowReset: true}, zerolog.Nop())

			req := httptest.NewRequest(http.MethodPost, "/api/reset", bytes.NewBufferString(`{"confirm": true}`))
			req.Header.Set("Content-Type", "application/json")
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			w := httptest.NewRecorder()
			api.Routes().ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
