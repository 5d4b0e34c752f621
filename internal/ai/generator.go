package ai

import (
	"context"
	"strings"
)

const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderScripted = "scripted"
)

// Generator is the generative text collaborator. It receives a system
// instruction plus a context payload and returns raw text that is expected,
// but not guaranteed, to contain one JSON object.
type Generator interface {
	GenerateContent(ctx context.Context, systemInstruction, message string) (string, error)
	Model() string
}

// NormalizeProvider lower-cases and trims a configured provider name, defaulting to gemini.
func NormalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return ProviderGemini
	}
	return provider
}
