// Package agent generates Quinn's replies.
//
// Invariants:
// - Provider calls go through RetryWithBackoff with a per-attempt timeout.
// - Provider failures never escape GenerateResponse; they become an error message.
// - Costs come from the pricing table, or the configured per-token rates for unknown models.
//
// Usage:
//
//	factory := agent.NewProviderFactory(cfg.Providers.Keys())
//	engine := agent.NewEngine(agent.EngineConfig{
//		Providers: factory,
//		Prompts:   agent.NewPromptStore(cfg.Prompts.Dir),
//		Logger:    logger,
//	})
//	msg, _ := engine.GenerateResponse(ctx, agent.Request{
//		ConversationID: conv.ID,
//		UserContent:    "my tests hang on CI",
//		Config:         models.DefaultAgentConfig(),
//	})
//	_ = msg
package agent
