package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alexdong/quinn/internal/metrics"
	"github.com/alexdong/quinn/internal/tracing"
	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/models"
	"github.com/alexdong/quinn/pkg/store"
)

// ErrNotFound is returned for missing conversations
var ErrNotFound = store.ErrNotFound

// Built-in users, one per local channel
const (
	CLIUserID = "cli-user"
	WebUserID = "web-user"
	MCPUserID = "mcp-user"
)

const titleMaxLength = 50

// Responder generates an assistant reply
type Responder interface {
	GenerateResponse(ctx context.Context, req agent.Request) (*models.Message, error)
}

// Result is the outcome of creating or continuing a conversation
type Result struct {
	Conversation *models.Conversation `json:"conversation"`
	Message      *models.Message      `json:"message"`
}

// Options configures a Manager
type Options struct {
	Store     *store.Store
	Responder Responder
	// Renderer builds the LLM prompts; nil sends the raw input and a plain history
	Renderer *agent.Renderer
	// Base overrides the generation settings of every registered model when set
	Base    *models.AgentConfig
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Manager creates and continues conversations
type Manager struct {
	mu        sync.RWMutex
	store     *store.Store
	responder Responder
	renderer  *agent.Renderer
	base      *models.AgentConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewManager creates a manager
func NewManager(opts Options) *Manager {
	return &Manager{
		store:     opts.Store,
		responder: opts.Responder,
		renderer:  opts.Renderer,
		base:      opts.Base,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// Store returns the current store; it changes after ResetAll
func (m *Manager) Store() *store.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

type channelKey struct{}

// WithChannel tags ctx with the channel (cli, web, email, mcp) for metrics
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

func channelFrom(ctx context.Context) string {
	if ch, ok := ctx.Value(channelKey{}).(string); ok && ch != "" {
		return ch
	}
	return "unknown"
}

// Setup creates the built-in users when missing
func (m *Manager) Setup(ctx context.Context) error {
	defaults := []struct {
		id, name, email string
	}{
		{CLIUserID, "CLI User", "cli@localhost"},
		{WebUserID, "Web User", "web@localhost"},
		{MCPUserID, "MCP User", "mcp@localhost"},
	}
	for _, d := range defaults {
		if err := m.EnsureUser(ctx, d.id, d.name, d.email); err != nil {
			return err
		}
	}
	return nil
}

// EnsureUser creates the user with id unless it already exists
func (m *Manager) EnsureUser(ctx context.Context, id, name string, emails ...string) error {
	s := m.Store()
	_, err := s.GetUser(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	u := models.NewUser(name, emails...)
	u.ID = id
	if err := s.CreateUser(ctx, u); err != nil {
		return errors.Wrapf(err, "ensure user %s", id)
	}
	m.logger.Debug().Str("user_id", id).Msg("Created user")
	return nil
}

// ListConversations returns a user's conversations, most recently updated first
func (m *Manager) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	convs, err := m.Store().ConversationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

// ConversationByIndex returns the index-th (1-based) listed conversation, or nil
func (m *Manager) ConversationByIndex(ctx context.Context, userID string, index int) (*models.Conversation, error) {
	convs, err := m.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > len(convs) {
		return nil, nil
	}
	return convs[index-1], nil
}

// MostRecent returns the most recently updated conversation, or nil
func (m *Manager) MostRecent(ctx context.Context, userID string) (*models.Conversation, error) {
	return m.ConversationByIndex(ctx, userID, 1)
}

// Conversation returns a conversation with its messages loaded
func (m *Manager) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	s := m.Store()
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.MessagesByConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

// ConversationForUser is Conversation restricted to userID's own
// conversations. Another user's conversation is reported as ErrNotFound.
func (m *Manager) ConversationForUser(ctx context.Context, id, userID string) (*models.Conversation, error) {
	conv, err := m.Conversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(conv, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

func checkOwner(conv *models.Conversation, userID string) error {
	if conv.UserID != userID {
		return errors.Wrapf(ErrNotFound, "conversation %s", conv.ID)
	}
	return nil
}

// Messages returns a conversation's messages, oldest first
func (m *Manager) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return m.Store().MessagesByConversation(ctx, conversationID)
}

// LastAssistantMessage returns the latest reply, or "" when there is none
func (m *Manager) LastAssistantMessage(ctx context.Context, conversationID string) (string, error) {
	msgs, err := m.Messages(ctx, conversationID)
	if err != nil || len(msgs) == 0 {
		return "", err
	}
	return msgs[len(msgs)-1].AssistantContent, nil
}

// BuildConversationContext prefixes input with the stored exchanges of a conversation
func (m *Manager) BuildConversationContext(ctx context.Context, conversationID, input string) (string, error) {
	history, err := m.Messages(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return buildContext(history, input), nil
}

func buildContext(history []models.Message, input string) string {
	if len(history) == 0 {
		return input
	}
	lines := make([]string, 0, len(history)*2)
	for _, msg := range history {
		lines = append(lines, "User: "+msg.UserContent, "Quinn: "+msg.AssistantContent)
	}
	return "Previous conversation:\n" + strings.Join(lines, "\n\n") + "\n\nNew message: " + input
}

// Title derives a conversation title from the first input, cutting it after
// titleMaxLength characters
func Title(input string) string {
	runes := []rune(input)
	if len(runes) > titleMaxLength {
		return string(runes[:titleMaxLength]) + "..."
	}
	return input
}

func validateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.Mark(errors.New("User input is required"), agent.ErrInvalidInput)
	}
	return nil
}

// agentConfig resolves a model name, applying the base generation settings
func (m *Manager) agentConfig(model string) (models.AgentConfig, error) {
	if model == "" {
		model = DefaultModel
	}
	cfg, err := ModelConfig(model)
	if err != nil {
		return cfg, err
	}
	if b := m.base; b != nil {
		if b.Temperature > 0 {
			cfg.Temperature = b.Temperature
		}
		if b.MaxTokens > 0 {
			cfg.MaxTokens = b.MaxTokens
		}
		if b.TimeoutSeconds > 0 {
			cfg.TimeoutSeconds = b.TimeoutSeconds
		}
		if b.MaxRetries > 0 {
			cfg.MaxRetries = b.MaxRetries
		}
		if b.RetryBackoffFactor > 1 {
			cfg.RetryBackoffFactor = b.RetryBackoffFactor
		}
	}
	return cfg, nil
}

// CreateNew starts a conversation with input as its first message
func (m *Manager) CreateNew(ctx context.Context, userID, input, model string) (*Result, error) {
	return m.CreateWithID(ctx, uuid.New().String(), userID, input, "", model)
}

// CreateWithID starts a conversation under a caller-chosen id. An empty title
// is derived from input.
func (m *Manager) CreateWithID(ctx context.Context, conversationID, userID, input, title, model string) (*Result, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	cfg, err := m.agentConfig(model)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = Title(input)
	}
	conv := models.NewConversation(userID, title)
	conv.ID = conversationID

	ctx = tracing.WithConversationID(ctx, conv.ID)
	logger := tracing.LoggerFromContext(ctx, m.logger)

	prompt := input
	if m.renderer != nil {
		if prompt, err = m.renderer.RenderInitial(input); err != nil {
			return nil, err
		}
	}

	msg, err := m.responder.GenerateResponse(ctx, agent.Request{
		ConversationID: conv.ID,
		UserContent:    input,
		Prompt:         prompt,
		Config:         cfg,
	})
	if err != nil {
		return nil, err
	}

	conv.MessageCount = 1
	if msg.Metadata != nil {
		conv.TotalCost = msg.Metadata.CostUSD
	}

	s := m.Store()
	if err := s.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	if err := s.CreateMessage(ctx, msg, userID); err != nil {
		return nil, err
	}
	conv.Messages = []models.Message{*msg}

	m.metrics.RecordMessage(channelFrom(ctx), true)
	logger.Info().Str("user_id", userID).Str("model", cfg.Model).Msg("Conversation created")

	return &Result{Conversation: conv, Message: msg}, nil
}

// Continue adds input to an existing conversation owned by userID
func (m *Manager) Continue(ctx context.Context, conversationID, userID, input, model string) (*Result, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	cfg, err := m.agentConfig(model)
	if err != nil {
		return nil, err
	}

	s := m.Store()
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(conv, userID); err != nil {
		return nil, err
	}
	history, err := s.MessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ctx = tracing.WithConversationID(ctx, conv.ID)
	logger := tracing.LoggerFromContext(ctx, m.logger)

	var prompt string
	if m.renderer != nil && len(history) > 0 {
		if prompt, err = m.renderer.RenderSubsequent(history, input); err != nil {
			return nil, err
		}
	} else {
		prompt = buildContext(history, input)
	}

	msg, err := m.responder.GenerateResponse(ctx, agent.Request{
		ConversationID: conv.ID,
		UserContent:    input,
		Prompt:         prompt,
		History:        history,
		Config:         cfg,
	})
	if err != nil {
		return nil, err
	}

	conv.MessageCount++
	if msg.Metadata != nil {
		conv.TotalCost += msg.Metadata.CostUSD
	}
	if conv.IsArchived() {
		conv.Status = models.StatusActive
		logger.Info().Msg("Reactivated archived conversation")
	}
	if err := s.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}
	if err := s.CreateMessage(ctx, msg, userID); err != nil {
		return nil, err
	}
	conv.Messages = append(history, *msg)

	m.metrics.RecordMessage(channelFrom(ctx), false)
	logger.Debug().Int("message_count", conv.MessageCount).Msg("Conversation continued")

	return &Result{Conversation: conv, Message: msg}, nil
}
