package email

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alexdong/quinn/internal/metrics"
	"github.com/alexdong/quinn/pkg/models"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) CreateEmail(ctx context.Context, e *models.EmailMessage) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func outboundEmail() *models.EmailMessage {
	return &models.EmailMessage{
		ID:             "<reply@quinn.email>",
		ConversationID: "thread42",
		Direction:      models.DirectionOutbound,
		Subject:        "Re: hello",
		FromEmail:      "quinn@quinn.email",
		To:             []string{"a@example.com", "b@example.com"},
		Cc:             []string{"c@example.com"},
		Text:           "text body",
		HTML:           "<p>html body</p>",
		Headers:        map[string]string{"In-Reply-To": "<orig@example.com>"},
	}
}

// noSleep replaces the retry wait and records the requested delays
func noSleep(c *PostmarkClient) *[]time.Duration {
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &delays
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryDelay(1))
	assert.Equal(t, 4*time.Second, RetryDelay(2))
	assert.Equal(t, 8*time.Second, RetryDelay(3))
	assert.Equal(t, 10*time.Second, RetryDelay(4))
	assert.Equal(t, 10*time.Second, RetryDelay(10))
}

func TestPostmarkClient_Send(t *testing.T) {
	var got map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ErrorCode":0,"Message":"OK"}`))
	}))
	defer srv.Close()

	rec := &mockRecorder{}
	rec.On("CreateEmail", mock.Anything, mock.MatchedBy(func(e *models.EmailMessage) bool {
		return e.ID == "<reply@quinn.email>"
	})).Return(nil).Once()

	m := metrics.NewMetrics()
	client := NewPostmarkClient(PostmarkConfig{
		Endpoint:    srv.URL,
		ServerToken: "server-token",
		Recorder:    rec,
		Metrics:     m,
		Logger:      zerolog.Nop(),
	})

	require.NoError(t, client.Send(context.Background(), outboundEmail()))

	assert.Equal(t, "server-token", headers.Get("X-Postmark-Server-Token"))
	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Equal(t, "quinn@quinn.email", got["From"])
	assert.Equal(t, "a@example.com,b@example.com", got["To"])
	assert.Equal(t, "c@example.com", got["Cc"])
	assert.Equal(t, "", got["Bcc"])
	assert.Equal(t, "Re: hello", got["Subject"])
	assert.Equal(t, "text body", got["TextBody"])
	assert.Equal(t, "<p>html body</p>", got["HtmlBody"])
	assert.Equal(t, []any{map[string]any{"Name": "In-Reply-To", "Value": "<orig@example.com>"}}, got["Headers"])

	rec.AssertExpectations(t)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmailsSentTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.EmailsFailedTotal))
}

func TestPostmarkClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"ErrorCode":500}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &mockRecorder{}
	rec.On("CreateEmail", mock.Anything, mock.Anything).Return(nil).Once()

	client := NewPostmarkClient(PostmarkConfig{
		Endpoint: srv.URL,
		Retries:  3,
		Recorder: rec,
		Logger:   zerolog.Nop(),
	})
	delays := noSleep(client)

	require.NoError(t, client.Send(context.Background(), outboundEmail()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
	rec.AssertExpectations(t)
}

func TestPostmarkClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"ErrorCode":422,"Message":"Invalid email"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	rec := &mockRecorder{}
	m := metrics.NewMetrics()
	client := NewPostmarkClient(PostmarkConfig{
		Endpoint: srv.URL,
		Retries:  2,
		Recorder: rec,
		Metrics:  m,
		Logger:   zerolog.Nop(),
	})
	delays := noSleep(client)

	err := client.Send(context.Background(), outboundEmail())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "Invalid email")
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *delays, 2)

	rec.AssertNotCalled(t, "CreateEmail", mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmailsFailedTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.EmailsSentTotal))
}

func TestPostmarkClient_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewPostmarkClient(PostmarkConfig{Endpoint: srv.URL, Retries: 5, Logger: zerolog.Nop()})
	client.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := client.Send(ctx, outboundEmail())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostmarkClient_NilRecorder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewPostmarkClient(PostmarkConfig{Endpoint: srv.URL, SendsPerSecond: 100, Logger: zerolog.Nop()})
	require.NoError(t, client.Send(context.Background(), outboundEmail()))
}

func TestManagerRecorder_FollowsReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, mgr, _ := newTestProcessor(t, nil, nil)
	ctx := context.Background()

	client := NewPostmarkClient(PostmarkConfig{
		Endpoint:       srv.URL,
		SendsPerSecond: 100,
		Recorder:       ManagerRecorder(mgr),
		Logger:         zerolog.Nop(),
	})

	before := mgr.Store()
	require.NoError(t, mgr.ResetAll(ctx))
	require.NotSame(t, before, mgr.Store())
	t.Cleanup(func() { mgr.Store().Close() })

	require.NoError(t, client.Send(ctx, outboundEmail()))

	stored, err := mgr.Store().GetEmail(ctx, "<reply@quinn.email>")
	require.NoError(t, err)
	assert.Equal(t, "thread42", stored.ConversationID)
	assert.Equal(t, models.DirectionOutbound, stored.Direction)
}
