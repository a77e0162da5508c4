package translate

import (
	"context"
	"fmt"

	"github.com/lexiqai/interpreter/internal/config"
)

// NewBackend builds the configured provider. It returns a nil backend when
// the provider's API key is empty.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	key := cfg.TranslationAPIKey()
	if key == "" {
		return nil, nil
	}

	switch cfg.TranslationProvider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, key)
		if err != nil {
			return nil, err
		}
		return NewGeminiBackend(client.Models), nil
	case config.ProviderOpenAI:
		client := NewOpenAIClient(key, cfg.OpenAIBaseURL)
		return NewOpenAIBackend(&client.Chat.Completions), nil
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.TranslationProvider)
	}
}
