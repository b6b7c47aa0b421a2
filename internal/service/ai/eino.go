package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
)

// ChatModel is the eino model port every non-Ollama backend goes through.
type ChatModel = model.BaseChatModel

// ModelFactory builds the eino chat model for a model identifier.
type ModelFactory func(ctx context.Context, modelID string) (ChatModel, error)

// EinoTransport streams through any eino chat model, e.g. Ark.
type EinoTransport struct {
	name    string
	factory ModelFactory
	catalog []llm.ModelInfo
	logger  *zap.Logger

	mu     sync.Mutex
	models map[string]ChatModel
}

// NewEinoTransport wraps factory. catalog is what ListModels reports.
func NewEinoTransport(name string, factory ModelFactory, catalog []llm.ModelInfo, logger *zap.Logger) *EinoTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EinoTransport{
		name:    name,
		factory: factory,
		catalog: append([]llm.ModelInfo(nil), catalog...),
		logger:  logger.With(zap.String("backend", name)),
		models:  make(map[string]ChatModel),
	}
}

// Name identifies the backend.
func (t *EinoTransport) Name() string { return t.name }

// Stream converts the transcript to eino messages and relays content chunks.
func (t *EinoTransport) Stream(ctx context.Context, modelID string, turns []chat.Turn) (*schema.StreamReader[chat.Fragment], error) {
	cm, err := t.chatModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	stream, err := cm.Stream(ctx, toEinoMessages(turns))
	if err != nil {
		return nil, fmt.Errorf("failed to stream %s output: %w", t.name, Classify(err))
	}

	return schema.StreamReaderWithConvert(stream, func(msg *schema.Message) (chat.Fragment, error) {
		if msg == nil || msg.Content == "" {
			return chat.Fragment{}, schema.ErrNoValue
		}
		return chat.Fragment{Text: msg.Content}, nil
	}), nil
}

// ListModels returns the configured catalog.
func (t *EinoTransport) ListModels(context.Context) ([]llm.ModelInfo, error) {
	return append([]llm.ModelInfo(nil), t.catalog...), nil
}

// Ping builds the default model, which validates credentials and settings.
func (t *EinoTransport) Ping(ctx context.Context) error {
	if len(t.catalog) == 0 {
		return fmt.Errorf("%w: no models configured", ErrTransportUnavailable)
	}
	_, err := t.chatModel(ctx, t.catalog[0].Name)
	return err
}

func (t *EinoTransport) chatModel(ctx context.Context, modelID string) (ChatModel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cm, ok := t.models[modelID]; ok {
		return cm, nil
	}
	cm, err := t.factory(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %q: %w", modelID, err)
	}
	t.models[modelID] = cm
	t.logger.Info("chat model initialized", zap.String("model", modelID))
	return cm, nil
}

func toEinoMessages(turns []chat.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		var msg *schema.Message
		switch turn.Role {
		case chat.RoleSystem:
			msg = schema.SystemMessage(turn.Content)
		case chat.RoleAssistant:
			msg = schema.AssistantMessage(turn.Content, nil)
		default:
			msg = schema.UserMessage(turn.Content)
		}

		if len(turn.Attachments) > 0 {
			parts := make([]schema.ChatMessagePart, 0, len(turn.Attachments)+1)
			if turn.Content != "" {
				parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: turn.Content})
			}
			for _, a := range turn.Attachments {
				parts = append(parts, schema.ChatMessagePart{
					Type:     schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{URL: dataURL(a)},
				})
			}
			msg.MultiContent = parts
		}
		messages = append(messages, msg)
	}
	return messages
}

func dataURL(blob []byte) string {
	return "data:" + http.DetectContentType(blob) + ";base64," + base64.StdEncoding.EncodeToString(blob)
}
