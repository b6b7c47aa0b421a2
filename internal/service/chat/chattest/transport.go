// Package chattest provides a scripted model backend for tests.
package chattest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
)

// Transport replays a fixed reply. The zero value streams an empty reply.
type Transport struct {
	// Fragments are sent in order for every exchange.
	Fragments []string
	// FailWith ends the stream with this error after the fragments.
	FailWith error
	// Refuse is returned from Stream before any streaming starts.
	Refuse error
	// Gate, when set, holds the stream until it is closed or the context ends.
	Gate chan struct{}

	Models  []llm.ModelInfo
	ListErr error
	PingErr error

	mu    sync.Mutex
	calls [][]chat.Turn
}

// Stream implements the chat transport.
func (t *Transport) Stream(ctx context.Context, _ string, turns []chat.Turn) (*schema.StreamReader[chat.Fragment], error) {
	t.mu.Lock()
	t.calls = append(t.calls, turns)
	t.mu.Unlock()

	if t.Refuse != nil {
		return nil, t.Refuse
	}

	sr, sw := schema.Pipe[chat.Fragment](len(t.Fragments) + 1)
	go func() {
		defer sw.Close()
		if t.Gate != nil {
			select {
			case <-t.Gate:
			case <-ctx.Done():
				sw.Send(chat.Fragment{}, ctx.Err())
				return
			}
		}
		for _, text := range t.Fragments {
			if err := ctx.Err(); err != nil {
				sw.Send(chat.Fragment{}, err)
				return
			}
			if closed := sw.Send(chat.Fragment{Text: text}, nil); closed {
				return
			}
		}
		if t.FailWith != nil {
			sw.Send(chat.Fragment{}, t.FailWith)
		}
	}()
	return sr, nil
}

// Calls returns the transcripts the transport received.
func (t *Transport) Calls() [][]chat.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]chat.Turn(nil), t.calls...)
}

// ListModels returns Models or ListErr.
func (t *Transport) ListModels(context.Context) ([]llm.ModelInfo, error) {
	if t.ListErr != nil {
		return nil, t.ListErr
	}
	return append([]llm.ModelInfo(nil), t.Models...), nil
}

// Ping returns PingErr.
func (t *Transport) Ping(context.Context) error { return t.PingErr }

// Name identifies the fake.
func (t *Transport) Name() string { return "scripted" }
