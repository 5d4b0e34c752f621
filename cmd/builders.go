package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/ai"
	"github.com/spigell/cv-wizard/internal/ai/gemini"
	"github.com/spigell/cv-wizard/internal/ai/openai"
	"github.com/spigell/cv-wizard/internal/ai/scripted"
	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/logger"
	"github.com/spigell/cv-wizard/internal/secrets"
	"github.com/spigell/cv-wizard/internal/store"
	"github.com/spigell/cv-wizard/internal/wizard"
)

// loadQuestions returns the configured question list or the built-in one.
func loadQuestions(config *Config) ([]fields.Question, error) {
	if path := strings.TrimSpace(config.QuestionsFile); path != "" {
		return fields.LoadQuestions(path)
	}
	return fields.DefaultQuestions()
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	if cfg == nil {
		return nil, errors.New("ai configuration is required")
	}

	switch provider := ai.NormalizeProvider(cfg.Provider); provider {
	case ai.ProviderGemini:
		return newGeminiGenerator(ctx, cfg.Gemini, logger)
	case ai.ProviderOpenAI:
		return newOpenAIGenerator(cfg.OpenAI, logger)
	case ai.ProviderScripted:
		return scripted.New(withProvider(logger, ai.ProviderScripted, "")), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

func newGeminiGenerator(ctx context.Context, cfg *GeminiConfig, log *zap.Logger) (ai.Generator, error) {
	if cfg == nil {
		cfg = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.APIKeyFile,
		Value: cfg.APIKey,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (or set ai.gemini.api-key-file)", err)
	}

	genLogger := withProvider(log, ai.ProviderGemini, cfg.Model).With(
		zap.Int("ai_retry_attempts", cfg.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Model, cfg.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}
	return generator, nil
}

func newOpenAIGenerator(cfg *OpenAIConfig, log *zap.Logger) (ai.Generator, error) {
	if cfg == nil {
		cfg = &OpenAIConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "openai api key",
		File:  cfg.APIKeyFile,
		Value: cfg.APIKey,
		Env:   "OPENAI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (or set ai.openai.api-key-file)", err)
	}

	generator, err := openai.NewGenerator(apiKey, cfg.Model, cfg.BaseURL, cfg.MaxRetries, withProvider(log, ai.ProviderOpenAI, cfg.Model))
	if err != nil {
		return nil, err
	}
	return generator, nil
}

func withProvider(log *zap.Logger, provider, model string) *zap.Logger {
	return logger.WithCommonFields(log, provider, model)
}

func maxLogLength(cfg *AIConfig) int {
	if cfg == nil {
		return 0
	}
	switch ai.NormalizeProvider(cfg.Provider) {
	case ai.ProviderGemini:
		if cfg.Gemini != nil {
			return cfg.Gemini.MaxLogLength
		}
	case ai.ProviderOpenAI:
		if cfg.OpenAI != nil {
			return cfg.OpenAI.MaxLogLength
		}
	}
	return 0
}

func newStore(cfg *StoreConfig) (store.Store, error) {
	if cfg == nil {
		return store.NewMemoryStore(), nil
	}
	return store.New(cfg.Driver, store.WithDSN(cfg.DSN))
}

// newDriver wires the generator and the store into a conversation driver.
// The returned store must be closed by the caller.
func newDriver(ctx context.Context, config *Config, log *zap.Logger) (*wizard.Driver, store.Store, error) {
	generator, err := newGenerator(ctx, config.AI, log)
	if err != nil {
		return nil, nil, fmt.Errorf("building generator: %w", err)
	}

	st, err := newStore(config.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	provider := ""
	if config.AI != nil {
		provider = ai.NormalizeProvider(config.AI.Provider)
	}

	driver, err := wizard.NewDriver(&wizard.DriverConfig{
		HistoryLimit: config.HistoryLimit,
		MaxLogLength: maxLogLength(config.AI),
	}, &wizard.DriverDeps{
		Generator: generator,
		Persister: st,
		Logger:    withProvider(log, provider, generator.Model()),
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	return driver, st, nil
}
