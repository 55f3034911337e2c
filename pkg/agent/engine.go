package agent

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alexdong/quinn/internal/metrics"
	"github.com/alexdong/quinn/internal/tracing"
	"github.com/alexdong/quinn/pkg/models"
)

// MaxPromptLength bounds the prompt copy stored on a message
const MaxPromptLength = 20000

// ErrorSystemPrompt is stored on messages whose generation failed
const ErrorSystemPrompt = "Error occurred during response generation"

// ProviderSource resolves a provider by name
type ProviderSource interface {
	NewProvider(name string) (LLMProvider, error)
}

// EngineConfig wires an Engine
type EngineConfig struct {
	Providers ProviderSource
	// Prompts supplies the system prompt; nil uses FallbackSystemPrompt
	Prompts *PromptStore
	// PromptVersion is used when a request names none; defaults to "latest"
	PromptVersion string
	// Cache is optional
	Cache   *ResponseCache
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Engine generates assistant replies with retries, costing and metrics
type Engine struct {
	providers     ProviderSource
	prompts       *PromptStore
	promptVersion string
	cache         *ResponseCache
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewEngine creates an engine
func NewEngine(cfg EngineConfig) *Engine {
	version := cfg.PromptVersion
	if version == "" {
		version = LatestPromptVersion
	}
	return &Engine{
		providers:     cfg.Providers,
		prompts:       cfg.Prompts,
		promptVersion: version,
		cache:         cfg.Cache,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// Request describes one response generation
type Request struct {
	ConversationID string
	UserContent    string
	// Prompt is sent to the model as is when set; otherwise it is built from
	// UserContent and History
	Prompt  string
	History []models.Message
	// SystemPrompt overrides the stored system prompt
	SystemPrompt  string
	PromptVersion string
	Config        models.AgentConfig
}

// BuildConversationPrompt folds prior exchanges into a single prompt
func BuildConversationPrompt(userContent string, history []models.Message) string {
	turns := HistoryTurns(history)
	if len(turns) == 0 {
		return userContent
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == RoleUser {
			lines = append(lines, "User: "+turn.Content)
		} else {
			lines = append(lines, "Assistant: "+turn.Content)
		}
	}
	return "Previous conversations:\n" + strings.Join(lines, "\n") + "\n\nUser: " + userContent
}

// truncatePrompt keeps the first MaxPromptLength characters of prompt
func truncatePrompt(prompt string) string {
	if utf8.RuneCountInString(prompt) <= MaxPromptLength {
		return prompt
	}
	return string([]rune(prompt)[:MaxPromptLength]) + "..."
}

// GenerateResponse asks the configured model for a reply. Only invalid input
// is returned as an error; provider failures become an error message.
func (e *Engine) GenerateResponse(ctx context.Context, req Request) (*models.Message, error) {
	if strings.TrimSpace(req.UserContent) == "" {
		return nil, invalidInput("User message content cannot be empty")
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		return nil, invalidInput("Conversation ID cannot be empty")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, errors.Mark(err, ErrInvalidInput)
	}
	if err := ValidateSystemPrompt(req.SystemPrompt); err != nil {
		return nil, err
	}
	if err := ValidateConversationHistory(HistoryTurns(req.History)); err != nil {
		return nil, err
	}

	cfg := req.Config
	ctx = tracing.WithConversationID(ctx, req.ConversationID)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerAgent, "agent.generate_response", "",
		attribute.String("quinn.model", cfg.Model),
		attribute.String("quinn.provider", cfg.Provider),
	)
	logger := tracing.LoggerFromContext(ctx, e.logger)

	prompt := req.Prompt
	if prompt == "" {
		prompt = BuildConversationPrompt(req.UserContent, req.History)
	}

	version := req.PromptVersion
	if version == "" {
		version = e.promptVersion
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = e.loadSystemPrompt(version, logger)
	}
	versionLabel := version
	if e.prompts != nil {
		versionLabel = e.prompts.VersionLabel(version)
	} else if version == LatestPromptVersion {
		versionLabel = ""
	}

	var cacheKey string
	if e.cache != nil {
		cacheKey, _ = PromptHash(prompt, systemPrompt, cfg.Model)
		if cached, ok, _ := e.cache.Get(cacheKey); ok {
			e.metrics.RecordCache(true)
			logger.Debug().Msg("Response cache hit")
			tracing.EndSpan(span, nil)
			return rebind(cached, req), nil
		}
		e.metrics.RecordCache(false)
	}

	start := time.Now().UTC()
	resp, err := e.call(ctx, cfg, systemPrompt, prompt, logger)
	end := time.Now().UTC()
	e.metrics.RecordLLMCall(cfg.Model, err, end.Sub(start))

	if err != nil {
		tracing.EndSpan(span, err)
		logger.Error().Err(err).Str("model", cfg.Model).Msg("Response generation failed")
		return &models.Message{
			ID:               uuid.New().String(),
			ConversationID:   req.ConversationID,
			UserContent:      req.UserContent,
			AssistantContent: "Error generating response: " + err.Error(),
			SystemPrompt:     ErrorSystemPrompt,
			CreatedAt:        start,
			LastUpdatedAt:    end,
		}, nil
	}

	usage := resp.Usage
	cost, err := CalculateCost(cfg.Model, usage.InputTokens, usage.OutputTokens, usage.CachedInputTokens)
	if err != nil {
		logger.Debug().Err(err).Msg("Using configured per-token rates")
		cost = float64(usage.InputTokens+usage.CachedInputTokens)*cfg.InputCostPerToken +
			float64(usage.OutputTokens)*cfg.OutputCostPerToken
	}
	e.metrics.RecordUsage(cfg.Model, usage.InputTokens, usage.OutputTokens, usage.CachedInputTokens, cost)

	tracked, err := TrackResponseMetrics(start, cfg.Model, versionLabel, usage.InputTokens, usage.OutputTokens, cost)
	if err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}

	storedPrompt := req.SystemPrompt
	if storedPrompt == "" {
		storedPrompt = truncatePrompt(prompt)
	}

	msg := &models.Message{
		ID:               uuid.New().String(),
		ConversationID:   req.ConversationID,
		UserContent:      req.UserContent,
		AssistantContent: resp.Content,
		SystemPrompt:     storedPrompt,
		CreatedAt:        start,
		LastUpdatedAt:    end,
		Metadata: &models.MessageMetrics{
			TokensUsed:     tracked.TotalTokensUsed,
			CostUSD:        tracked.TotalCostUSD,
			ResponseTimeMs: int(end.Sub(start).Milliseconds()),
			ModelUsed:      cfg.Model,
			PromptVersion:  versionLabel,
		},
	}

	if e.cache != nil && cacheKey != "" {
		if err := e.cache.Set(cacheKey, msg); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	span.SetAttributes(
		attribute.Int("quinn.tokens", tracked.TotalTokensUsed),
		attribute.Float64("quinn.cost_usd", cost),
	)
	tracing.EndSpan(span, nil)

	logger.Info().
		Str("model", cfg.Model).
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Int("cached_tokens", usage.CachedInputTokens).
		Float64("cost_usd", cost).
		Int("response_time_ms", msg.Metadata.ResponseTimeMs).
		Msg("Response generated")

	return msg, nil
}

// call runs the provider under retry, giving each attempt its own deadline
func (e *Engine) call(ctx context.Context, cfg models.AgentConfig, systemPrompt, prompt string, logger zerolog.Logger) (*LLMResponse, error) {
	if e.providers == nil {
		return nil, errors.New("no LLM providers configured")
	}
	provider, err := e.providers.NewProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	request := LLMRequest{
		Model:          cfg.APIModel(),
		SystemPrompt:   systemPrompt,
		Messages:       []ChatMessage{{Role: RoleUser, Content: prompt}},
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		ThinkingBudget: cfg.ThinkingBudget,
	}

	policy := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		BackoffFactor: cfg.RetryBackoffFactor,
		Logger:        logger,
		OnRetry: func(int, error) {
			e.metrics.RecordRetry(cfg.Model)
		},
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return RetryWithBackoff(ctx, policy, func(ctx context.Context) (*LLMResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		ctx, span := tracing.StartSpan(callCtx, tracing.TracerAgent, "llm.call", "",
			attribute.String("quinn.provider", provider.Provider()),
			attribute.String("quinn.api_model", request.Model),
		)
		resp, err := provider.Call(ctx, request)
		if err == nil {
			span.SetAttributes(attribute.String("quinn.llm_span", tracing.LLMSpanID(cfg.Model, resp.ID)))
		}
		tracing.EndSpan(span, err)
		return resp, err
	})
}

func (e *Engine) loadSystemPrompt(version string, logger zerolog.Logger) string {
	if e.prompts == nil {
		return FallbackSystemPrompt
	}
	prompt, err := e.prompts.Load(version)
	if err != nil {
		logger.Warn().Err(err).Str("version", version).Msg("Falling back to built-in system prompt")
		return FallbackSystemPrompt
	}
	return prompt
}

// rebind turns a cached reply into a fresh message for this request
func rebind(cached *models.Message, req Request) *models.Message {
	now := time.Now().UTC()
	msg := *cached
	msg.ID = uuid.New().String()
	msg.ConversationID = req.ConversationID
	msg.UserContent = req.UserContent
	msg.CreatedAt = now
	msg.LastUpdatedAt = now
	if msg.Metadata != nil {
		msg.Metadata.CostUSD = 0
		msg.Metadata.ResponseTimeMs = 0
	}
	return &msg
}
