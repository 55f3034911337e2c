package email

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alexdong/quinn/internal/tracing"
	"github.com/alexdong/quinn/pkg/conversation"
	"github.com/alexdong/quinn/pkg/models"
	"github.com/alexdong/quinn/pkg/store"
)

// Sender delivers an outbound email
type Sender interface {
	Send(ctx context.Context, e *models.EmailMessage) error
}

// ProcessorConfig configures a Processor
type ProcessorConfig struct {
	Manager *conversation.Manager
	// Sender is nil when no Postmark server token is configured
	Sender         Sender
	AllowedSenders []string
	FromAddress    string
	Model          string
	Logger         zerolog.Logger
}

// Processor turns inbound Postmark webhooks into conversation replies
type Processor struct {
	manager *conversation.Manager
	sender  Sender
	allowed []string
	from    string
	model   string
	logger  zerolog.Logger
}

// NewProcessor creates a processor
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		manager: cfg.Manager,
		sender:  cfg.Sender,
		allowed: cfg.AllowedSenders,
		from:    cfg.FromAddress,
		model:   cfg.Model,
		logger:  cfg.Logger,
	}
}

// HandleInbound processes one webhook body and returns the reply it produced.
// Postmark redelivers a webhook until it sees a 2xx, so a body that was
// already stored is answered at most once: an existing reply is returned as
// is, and an exchange generated before a failed send is reused.
func (p *Processor) HandleInbound(ctx context.Context, body []byte) (*models.EmailMessage, error) {
	inbound, err := ParseInbound(body, p.allowed)
	if err != nil {
		return nil, err
	}

	// The reply must outlive the webhook's handler timeout
	ctx = tracing.Detach(ctx)
	ctx = tracing.NewEmailContext(ctx, inbound.MailboxHash, inbound.ID)
	ctx = conversation.WithChannel(ctx, "email")
	logger := tracing.LoggerFromContext(ctx, p.logger)

	s := p.manager.Store()
	stored, err := s.GetEmail(ctx, inbound.ID)
	redelivered := err == nil
	switch {
	case redelivered:
		inbound.ConversationID = stored.ConversationID
		logger.Info().Msg("Inbound email redelivered")
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	case inbound.ConversationID == "":
		inbound.ConversationID = uuid.New().String()
	}
	ctx = tracing.WithConversationID(ctx, inbound.ConversationID)

	user, err := p.resolveUser(ctx, s, inbound)
	if err != nil {
		return nil, err
	}
	if err := p.checkOwner(ctx, s, inbound.ConversationID, user.ID); err != nil {
		return nil, err
	}

	if !redelivered {
		if err := s.CreateEmail(ctx, inbound); err != nil {
			return nil, err
		}
		logger.Info().
			Str("from", inbound.SenderAddress()).
			Str("subject", inbound.Subject).
			Msg("Inbound email stored")
	}

	thread, err := s.EmailsByConversation(ctx, inbound.ConversationID)
	if err != nil {
		return nil, err
	}
	history := make([]*models.EmailMessage, 0, len(thread))
	for _, e := range thread {
		if e.Direction == models.DirectionOutbound && e.InReplyTo == inbound.ID {
			logger.Info().Str("email_id", e.ID).Msg("Inbound email already answered")
			return e, nil
		}
		if e.ID != inbound.ID {
			history = append(history, e)
		}
	}

	result, err := p.respond(ctx, s, inbound, user.ID, history, redelivered)
	if err != nil {
		return nil, err
	}

	text := result.Message.AssistantContent
	html, err := RenderHTML(text)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to render reply HTML, sending text only")
		html = ""
	}
	reply := FormatReply(inbound, text, p.from, html)

	if p.sender == nil {
		if err := s.CreateEmail(ctx, reply); err != nil {
			return nil, err
		}
		logger.Warn().Str("email_id", reply.ID).Msg("Postmark server token not configured, reply stored but not sent")
		return reply, nil
	}

	if err := p.sender.Send(ctx, reply); err != nil {
		return nil, errors.Wrap(err, "send reply")
	}
	logger.Info().Str("email_id", reply.ID).Str("to", inbound.SenderAddress()).Msg("Reply sent")
	return reply, nil
}

// checkOwner rejects mail into a thread that belongs to another user
func (p *Processor) checkOwner(ctx context.Context, s *store.Store, conversationID, userID string) error {
	conv, err := s.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if conv.UserID != userID {
		return errors.Wrapf(ErrSenderNotAllowed, "conversation %s belongs to another user", conversationID)
	}
	return nil
}

// resolveUser finds the sender's user, creating one on first contact
func (p *Processor) resolveUser(ctx context.Context, s *store.Store, inbound *models.EmailMessage) (*models.User, error) {
	address := inbound.SenderAddress()
	user, err := s.GetUserByEmail(ctx, address)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	name := inbound.SenderName()
	if name == "" {
		name = address
	}
	user = models.NewUser(name, address)
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	p.logger.Info().Str("user_id", user.ID).Str("email", address).Msg("Created user for new sender")
	return user, nil
}

func (p *Processor) respond(ctx context.Context, s *store.Store, inbound *models.EmailMessage, userID string, history []*models.EmailMessage, redelivered bool) (*conversation.Result, error) {
	threadInput := BuildThreadContext(inbound, history)
	input := inbound.Text
	if input == "" {
		input = inbound.Subject
	}

	_, err := s.GetConversation(ctx, inbound.ConversationID)
	switch {
	case err == nil:
		if redelivered {
			if result, err := p.previousExchange(ctx, inbound.ConversationID, input, threadInput); result != nil || err != nil {
				return result, err
			}
		}
		return p.manager.Continue(ctx, inbound.ConversationID, userID, input, p.model)
	case errors.Is(err, store.ErrNotFound):
		return p.manager.CreateWithID(ctx, inbound.ConversationID, userID, threadInput, inbound.Subject, p.model)
	default:
		return nil, err
	}
}

// previousExchange returns the conversation's latest exchange when it was
// generated for this email on an earlier delivery, or nil
func (p *Processor) previousExchange(ctx context.Context, conversationID string, inputs ...string) (*conversation.Result, error) {
	conv, err := p.manager.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	last := conv.LatestMessage()
	if last == nil {
		return nil, nil
	}
	for _, in := range inputs {
		if last.UserContent == in {
			return &conversation.Result{Conversation: conv, Message: last}, nil
		}
	}
	return nil, nil
}
