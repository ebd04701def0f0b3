package provider

import (
	"fmt"
	"log/slog"
	"os"

	"nanobot/internal/domain"
)

// Resolve selects the spec matching the configured model and builds a chat
// provider from it. A matched spec without a resolvable credential is a
// "no provider configured" error, which the agent loop treats as terminal
// for the current turn.
func Resolve(registry *Registry, model string, logger *slog.Logger) (domain.ChatProvider, error) {
	spec := registry.MatchByModel(model)
	if spec == nil {
		return nil, fmt.Errorf("no provider registered")
	}

	apiKey := os.Getenv(spec.EnvKey)
	if apiKey == "" {
		return nil, fmt.Errorf("no provider configured: %s requires %s", spec.Name, spec.EnvKey)
	}

	logger.Info("resolved provider", "provider", spec.Name, "model", model)

	return NewOpenAICompat(Config{
		Name:    spec.Name,
		APIKey:  apiKey,
		BaseURL: spec.BaseURL,
		Model:   model,
		Logger:  logger,
	}), nil
}
