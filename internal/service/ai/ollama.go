package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/config"
	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
)

// errReaderClosed stops the Ollama callback once nobody reads the stream.
var errReaderClosed = errors.New("stream reader closed")

// OllamaTransport talks to a local Ollama server through its native API.
type OllamaTransport struct {
	client      *api.Client
	host        string
	listTimeout time.Duration
	logger      *zap.Logger
}

// NewOllamaTransport creates a transport for cfg.Host.
func NewOllamaTransport(cfg config.OllamaConfig, logger *zap.Logger) (*OllamaTransport, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.Host))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", cfg.Host)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	listTimeout := cfg.ListTimeout
	if listTimeout <= 0 {
		listTimeout = 10 * time.Second
	}

	return &OllamaTransport{
		client:      api.NewClient(base, newHTTPClient(cfg.Timeout)),
		host:        base.String(),
		listTimeout: listTimeout,
		logger:      logger.With(zap.String("backend", config.ProviderOllama)),
	}, nil
}

// newHTTPClient bounds the wait for response headers only. A streamed reply
// may run longer than timeout; List and Heartbeat carry their own deadline.
func newHTTPClient(timeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		base.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: chatStatusTransport{next: base}}
}

// chatStatusTransport reports a 404 from /api/chat as an unknown model. The
// client library would otherwise surface it as a bare error string.
type chatStatusTransport struct {
	next http.RoundTripper
}

func (t chatStatusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusNotFound || !strings.HasSuffix(req.URL.Path, "/api/chat") {
		return resp, err
	}
	defer resp.Body.Close()

	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}
	return nil, &modelNotFoundError{message: body.Error}
}

// Name identifies the backend.
func (t *OllamaTransport) Name() string { return config.ProviderOllama }

// Host returns the server address.
func (t *OllamaTransport) Host() string { return t.host }

// Stream sends the whole transcript to /api/chat and relays the reply
// chunks as fragments. Connection failures surface from Recv.
func (t *OllamaTransport) Stream(ctx context.Context, model string, turns []chat.Turn) (*schema.StreamReader[chat.Fragment], error) {
	stream := true
	req := &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(turns),
		Stream:   &stream,
	}

	sr, sw := schema.Pipe[chat.Fragment](16)
	go func() {
		defer sw.Close()
		started := time.Now()
		chunks := 0

		err := t.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Done {
				t.logger.Debug("chat stream done",
					zap.String("model", model),
					zap.String("reason", resp.DoneReason),
					zap.Int("chunks", chunks),
					zap.Duration("elapsed", time.Since(started)))
			}
			if resp.Message.Content == "" {
				return nil
			}
			chunks++
			if closed := sw.Send(chat.Fragment{Text: resp.Message.Content}, nil); closed {
				return errReaderClosed
			}
			return nil
		})
		if err != nil && !errors.Is(err, errReaderClosed) {
			sw.Send(chat.Fragment{}, Classify(err))
		}
	}()
	return sr, nil
}

// ListModels returns the models installed on the server, in server order.
// Entries without a name are skipped.
func (t *OllamaTransport) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, t.listTimeout)
	defer cancel()

	resp, err := t.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models from %s: %w", t.host, Classify(err))
	}

	models := make([]llm.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Model
		if name == "" {
			name = m.Name
		}
		if strings.TrimSpace(name) == "" {
			t.logger.Warn("skipping malformed model entry", zap.String("digest", m.Digest))
			continue
		}
		models = append(models, llm.ModelInfo{
			Name:          name,
			Size:          m.Size,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
			ModifiedAt:    m.ModifiedAt,
		})
	}
	return models, nil
}

// Ping checks that the server answers.
func (t *OllamaTransport) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.listTimeout)
	defer cancel()
	if err := t.client.Heartbeat(ctx); err != nil {
		return Classify(err)
	}
	return nil
}

func toOllamaMessages(turns []chat.Turn) []api.Message {
	messages := make([]api.Message, 0, len(turns))
	for _, turn := range turns {
		msg := api.Message{Role: string(turn.Role), Content: turn.Content}
		for _, a := range turn.Attachments {
			msg.Images = append(msg.Images, api.ImageData(a))
		}
		messages = append(messages, msg)
	}
	return messages
}
