package ai

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zhouzirui/spirit/backend/internal/config"
	"github.com/zhouzirui/spirit/backend/internal/service/search"
)

// New builds the Provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig, searcher search.Searcher) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderArk, "":
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "create ark chat model")
		}
		return NewEinoProvider(config.ProviderArk, chatModel, cfg.Model, searcher), nil
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, searcher)
	default:
		return nil, errors.Errorf("unsupported provider %q", cfg.Provider)
	}
}
