package email

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
	"github.com/alexdong/quinn/pkg/store"
)

type echoResponder struct {
	requests []agent.Request
}

func (r *echoResponder) GenerateResponse(ctx context.Context, req agent.Request) (*models.Message, error) {
	r.requests = append(r.requests, req)
	msg := models.NewMessage(req.ConversationID, req.UserContent)
	msg.AssistantContent = "**What** have you tried?"
	msg.Metadata = &models.MessageMetrics{TokensUsed: 12, CostUSD: 0.002, ModelUsed: req.Config.Model}
	return msg, nil
}

type recordingSender struct {
	sent []*models.EmailMessage
	err  error
}

func (s *recordingSender) Send(ctx context.Context, e *models.EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, e)
	return nil
}

func newTestProcessor(t *testing.T, sender Sender, allowed []string) (*Processor, *conversation.Manager, *echoResponder) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "quinn.db"), Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	responder := &echoResponder{}
	mgr := conversation.NewManager(conversation.Options{Store: s, Responder: responder, Logger: zerolog.Nop()})
	require.NoError(t, mgr.Setup(context.Background()))

	p := NewProcessor(ProcessorConfig{
		Manager:        mgr,
		Sender:         sender,
		AllowedSenders: allowed,
		FromAddress:    "quinn@quinn.email",
		Model:          "claude-sonnet-4",
		Logger:         zerolog.Nop(),
	})
	return p, mgr, responder
}

func inboundBody(t *testing.T, id, hash, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"MessageID":   id,
		"From":        "Alex Dong <alex@example.com>",
		"To":          "quinn+" + hash + "@quinn.email",
		"Subject":     "Design question",
		"TextBody":    text,
		"MailboxHash": hash,
	})
	require.NoError(t, err)
	return body
}

func TestProcessor_NewThread(t *testing.T) {
	sender := &recordingSender{}
	p, mgr, responder := newTestProcessor(t, sender, nil)
	ctx := context.Background()

	reply, err := p.HandleInbound(ctx, inboundBody(t, "<m1@example.com>", "thread42", "Should I split it?"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Same(t, reply, sender.sent[0])
	assert.Equal(t, "Re: Design question", reply.Subject)
	assert.Equal(t, []string{"alex@example.com"}, reply.To)
	assert.Equal(t, "<m1@example.com>", reply.InReplyTo)
	assert.Equal(t, "**What** have you tried?", reply.Text)
	assert.Contains(t, reply.HTML, "<strong>What</strong>")

	conv, err := mgr.Conversation(ctx, "thread42")
	require.NoError(t, err)
	assert.Equal(t, "Design question", conv.Title)
	assert.Equal(t, 1, conv.MessageCount)

	require.Len(t, responder.requests, 1)
	assert.Equal(t, "alex@example.com: Should I split it?", responder.requests[0].UserContent)
	assert.Equal(t, "claude-sonnet-4", responder.requests[0].Config.Model)

	user, err := mgr.Store().GetUserByEmail(ctx, "ALEX@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alex Dong", user.Name)
	assert.Equal(t, user.ID, conv.UserID)

	// the inbound email is stored; the reply is stored by the real sender only
	emails, err := mgr.Store().EmailsByConversation(ctx, "thread42")
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, models.DirectionInbound, emails[0].Direction)
}

func TestProcessor_ContinuesThread(t *testing.T) {
	sender := &recordingSender{}
	p, mgr, responder := newTestProcessor(t, sender, nil)
	ctx := context.Background()

	_, err := p.HandleInbound(ctx, inboundBody(t, "<m1@example.com>", "thread42", "first"))
	require.NoError(t, err)
	_, err = p.HandleInbound(ctx, inboundBody(t, "<m2@example.com>", "thread42", "second"))
	require.NoError(t, err)

	conv, err := mgr.Conversation(ctx, "thread42")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	assert.InDelta(t, 0.004, conv.TotalCost, 1e-9)

	require.Len(t, responder.requests, 2)
	assert.Equal(t, "second", responder.requests[1].UserContent)
	assert.Contains(t, responder.requests[1].Prompt, "User: alex@example.com: first")

	// the sender was reused, not recreated
	users, err := mgr.Store().GetUserByEmail(ctx, "alex@example.com")
	require.NoError(t, err)
	assert.Equal(t, conv.UserID, users.ID)
}

func TestProcessor_NoMailboxHash(t *testing.T) {
	sender := &recordingSender{}
	p, mgr, _ := newTestProcessor(t, sender, nil)

	reply, err := p.HandleInbound(context.Background(), inboundBody(t, "<m1@example.com>", "", "hello there"))
	require.NoError(t, err)
	require.NotEmpty(t, reply.ConversationID)

	conv, err := mgr.Conversation(context.Background(), reply.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
}

func TestProcessor_NoSenderStoresReply(t *testing.T) {
	p, mgr, _ := newTestProcessor(t, nil, nil)
	ctx := context.Background()

	reply, err := p.HandleInbound(ctx, inboundBody(t, "<m1@example.com>", "thread7", "hi"))
	require.NoError(t, err)

	emails, err := mgr.Store().EmailsByConversation(ctx, "thread7")
	require.NoError(t, err)
	require.Len(t, emails, 2)

	var ids []string
	for _, e := range emails {
		ids = append(ids, e.ID)
	}
	assert.Contains(t, ids, reply.ID)
}

func TestProcessor_SenderNotAllowed(t *testing.T) {
	sender := &recordingSender{}
	p, mgr, responder := newTestProcessor(t, sender, []string{"boss@example.com"})

	_, err := p.HandleInbound(context.Background(), inboundBody(t, "<m1@example.com>", "thread42", "hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSenderNotAllowed))
	assert.Empty(t, responder.requests)
	assert.Empty(t, sender.sent)

	_, err = mgr.Store().GetEmail(context.Background(), "<m1@example.com>")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestProcessor_InvalidPayload(t *testing.T) {
	p, _, _ := newTestProcessor(t, nil, nil)
	_, err := p.HandleInbound(context.Background(), []byte(`{"Subject": "no sender"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestProcessor_SendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("postmark down")}
	p, _, _ := newTestProcessor(t, sender, nil)

	_, err := p.HandleInbound(context.Background(), inboundBody(t, "<m1@example.com>", "thread42", "hi"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "postmark down"))
}

func TestProcessor_RedeliveryAfterReplyStored(t *testing.T) {
	p, mgr, responder := newTestProcessor(t, nil, nil)
	ctx := context.Background()
	body := inboundBody(t, "<m1@example.com>", "thread42", "Should I split it?")

	first, err := p.HandleInbound(ctx, body)
	require.NoError(t, err)
	second, err := p.HandleInbound(ctx, body)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, responder.requests, 1)

	emails, err := mgr.Store().EmailsByConversation(ctx, "thread42")
	require.NoError(t, err)
	require.Len(t, emails, 2)

	conv, err := mgr.Conversation(ctx, "thread42")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
}

func TestProcessor_RedeliveryAfterSendFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup []string // bodies delivered before the failing one
	}{
		{"new thread", nil},
		{"continued thread", []string{"first question"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			p, mgr, responder := newTestProcessor(t, sender, nil)
			ctx := context.Background()

			for i, text := range tt.setup {
				_, err := p.HandleInbound(ctx, inboundBody(t, "<setup"+string(rune('a'+i))+"@example.com>", "thread42", text))
				require.NoError(t, err)
			}
			before := len(responder.requests)

			body := inboundBody(t, "<m9@example.com>", "thread42", "Is this redelivered?")
			sender.err = errors.New("postmark down")
			_, err := p.HandleInbound(ctx, body)
			require.Error(t, err)

			sender.err = nil
			reply, err := p.HandleInbound(ctx, body)
			require.NoError(t, err)
			assert.Equal(t, "<m9@example.com>", reply.InReplyTo)
			require.NotEmpty(t, sender.sent)
			assert.Same(t, reply, sender.sent[len(sender.sent)-1])

			// the answer generated before the failed send is reused
			assert.Len(t, responder.requests, before+1)
			conv, err := mgr.Conversation(ctx, "thread42")
			require.NoError(t, err)
			assert.Equal(t, len(tt.setup)+1, conv.MessageCount)

			stored, err := mgr.Store().GetEmail(ctx, "<m9@example.com>")
			require.NoError(t, err)
			assert.Equal(t, models.DirectionInbound, stored.Direction)
		})
	}
}

func TestProcessor_ThreadOwnedByAnotherSender(t *testing.T) {
	sender := &recordingSender{}
	p, mgr, responder := newTestProcessor(t, sender, nil)
	ctx := context.Background()

	_, err := p.HandleInbound(ctx, inboundBody(t, "<m1@example.com>", "thread42", "mine"))
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"MessageID":   "<m2@example.net>",
		"From":        "mallory@example.net",
		"Subject":     "Re: Design question",
		"TextBody":    "let me in",
		"MailboxHash": "thread42",
	})
	require.NoError(t, err)

	_, err = p.HandleInbound(ctx, body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSenderNotAllowed))
	assert.Len(t, responder.requests, 1)
	assert.Len(t, sender.sent, 1)

	_, err = mgr.Store().GetEmail(ctx, "<m2@example.net>")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	conv, err := mgr.Conversation(ctx, "thread42")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.MessageCount)
}
