package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/config"
	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
)

// Directory lists the models a backend can serve.
type Directory interface {
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

// Backend is a model server: a streaming chat transport plus its model directory.
type Backend interface {
	Directory
	Stream(ctx context.Context, model string, turns []chat.Turn) (*schema.StreamReader[chat.Fragment], error)
	Ping(ctx context.Context) error
	Name() string
}

// NewBackend builds the backend selected by cfg.LLM.Provider.
func NewBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.LLM.Provider {
	case config.ProviderOllama, "":
		return NewOllamaTransport(cfg.Ollama, logger)
	case config.ProviderArk:
		ark := cfg.Ark
		factory := func(ctx context.Context, modelID string) (ChatModel, error) {
			return ark.NewChatModel(ctx, modelID)
		}
		models := []llm.ModelInfo{{Name: ark.Model}}
		return NewEinoTransport(config.ProviderArk, factory, models, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// Discover lists models, degrading to an empty list with a warning when the
// backend cannot be queried.
func Discover(ctx context.Context, dir Directory, logger *zap.Logger) []llm.ModelInfo {
	if dir == nil {
		return []llm.ModelInfo{}
	}
	models, err := dir.ListModels(ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("could not list models", zap.Error(err))
		}
		return []llm.ModelInfo{}
	}
	if models == nil {
		return []llm.ModelInfo{}
	}
	return models
}
