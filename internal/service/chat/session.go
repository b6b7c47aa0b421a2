package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
)

// MaxAttachments caps the attachments kept on a user turn. Extra ones are dropped.
const MaxAttachments = 1

// Transport streams an assistant reply for a full, ordered transcript.
// The returned reader yields fragments and ends with io.EOF; any other
// error ends the stream as a failure.
type Transport interface {
	Stream(ctx context.Context, model string, turns []chat.Turn) (*schema.StreamReader[chat.Fragment], error)
}

// Session owns one conversation: the persona's system turn followed by
// alternating user and assistant turns. At most one exchange runs at a time.
type Session struct {
	model     string
	persona   persona.Persona
	transport Transport
	logger    *zap.Logger

	mu         sync.Mutex
	transcript []chat.Turn
	busy       bool
}

// Option configures a Session.
type Option func(*Session) error

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithHistory seeds the transcript with earlier turns. The history must
// alternate user/assistant starting with user and end with an assistant turn.
func WithHistory(turns []chat.Turn) Option {
	return func(s *Session) error {
		for i, t := range turns {
			want := chat.RoleUser
			if i%2 == 1 {
				want = chat.RoleAssistant
			}
			if t.Role != want {
				return fmt.Errorf("%w: history turn %d has role %q, want %q", ErrInvalidInput, i, t.Role, want)
			}
			if strings.TrimSpace(t.Content) == "" && len(t.Attachments) == 0 {
				return fmt.Errorf("%w: history turn %d is empty", ErrInvalidInput, i)
			}
		}
		if len(turns)%2 != 0 {
			return fmt.Errorf("%w: history must end with an assistant turn", ErrInvalidInput)
		}
		for _, t := range turns {
			s.transcript = append(s.transcript, t.Clone())
		}
		return nil
	}
}

// NewSession starts a conversation for p on model.
func NewSession(p persona.Persona, model string, transport Transport, opts ...Option) (*Session, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, ErrModelRequired
	}
	instructions := strings.TrimSpace(p.Instructions)
	if instructions == "" {
		return nil, fmt.Errorf("%w: persona %q has no instructions", ErrNotFound, p.ID)
	}
	if transport == nil {
		return nil, errors.New("chat: transport is required")
	}

	s := &Session{
		model:      model,
		persona:    p,
		transport:  transport,
		logger:     zap.NewNop(),
		transcript: []chat.Turn{{Role: chat.RoleSystem, Content: instructions}},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Model returns the model identifier the session talks to.
func (s *Session) Model() string { return s.model }

// Persona returns the persona the session was created with.
func (s *Session) Persona() persona.Persona { return s.persona }

// Transcript returns a copy of the turns recorded so far.
func (s *Session) Transcript() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTurns(s.transcript)
}

// Len returns the number of recorded turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// Busy reports whether an exchange is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Submit appends a user turn and starts streaming the reply. The caller must
// drain the returned Exchange with Recv or release it with Close.
func (s *Session) Submit(ctx context.Context, in chat.Input) (*Exchange, error) {
	if in.Empty() {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	turn := chat.Turn{Role: chat.RoleUser, Content: in.Trimmed()}
	if n := len(in.Attachments); n > 0 {
		if n > MaxAttachments {
			s.logger.Debug("dropping extra attachments", zap.Int("received", n), zap.Int("kept", MaxAttachments))
			n = MaxAttachments
		}
		turn.Attachments = make([][]byte, n)
		for i := range n {
			turn.Attachments[i] = append([]byte(nil), in.Attachments[i]...)
		}
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	s.busy = true
	mark := len(s.transcript)
	s.transcript = append(s.transcript, turn)
	snapshot := cloneTurns(s.transcript)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.transport.Stream(ctx, s.model, snapshot)
	if err != nil {
		cancel()
		s.rollback(mark)
		s.logger.Warn("transport refused exchange", zap.String("model", s.model), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}

	return &Exchange{session: s, mark: mark, stream: stream, cancel: cancel}, nil
}

// Send runs one full exchange, handing each fragment to fn as it arrives.
// It returns the assistant turn that was recorded; the turn is zero when the
// model produced no text. An error from fn aborts the exchange.
func (s *Session) Send(ctx context.Context, in chat.Input, fn func(chat.Fragment) error) (chat.Turn, error) {
	ex, err := s.Submit(ctx, in)
	if err != nil {
		return chat.Turn{}, err
	}
	defer ex.Close()

	for {
		frag, err := ex.Recv()
		if errors.Is(err, io.EOF) {
			reply, _ := ex.Reply()
			return reply, nil
		}
		if err != nil {
			return chat.Turn{}, err
		}
		if fn == nil {
			continue
		}
		if err := fn(frag); err != nil {
			ex.abort(err)
			return chat.Turn{}, ex.err
		}
	}
}

func (s *Session) commit(mark int, text string) (chat.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if text == "" {
		// Keep alternation intact: an empty reply leaves no trace of the exchange.
		s.transcript = s.transcript[:mark]
		return chat.Turn{}, false
	}
	reply := chat.Turn{Role: chat.RoleAssistant, Content: text}
	s.transcript = append(s.transcript, reply)
	return reply, true
}

func (s *Session) rollback(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = s.transcript[:mark]
	s.busy = false
}

// Exchange is one in-flight streamed reply. It is not safe for concurrent use.
type Exchange struct {
	session *Session
	mark    int
	stream  *schema.StreamReader[chat.Fragment]
	cancel  context.CancelFunc

	buf     strings.Builder
	done    bool
	err     error
	reply   chat.Turn
	replied bool
}

// Recv returns the next non-empty fragment. It returns io.EOF once the reply
// has been recorded, or an error wrapping ErrTransportFailure after the user
// turn was rolled back.
func (e *Exchange) Recv() (chat.Fragment, error) {
	if e.done {
		if e.err != nil {
			return chat.Fragment{}, e.err
		}
		return chat.Fragment{}, io.EOF
	}

	for {
		frag, err := e.stream.Recv()
		if errors.Is(err, io.EOF) {
			e.finish()
			return chat.Fragment{}, io.EOF
		}
		if err != nil {
			e.fail(fmt.Errorf("%w: %w", ErrTransportFailure, err))
			return chat.Fragment{}, e.err
		}
		if frag.Text == "" {
			continue
		}
		e.buf.WriteString(frag.Text)
		return frag, nil
	}
}

// Reply returns the recorded assistant turn once the exchange ended cleanly.
func (e *Exchange) Reply() (chat.Turn, bool) {
	return e.reply, e.replied
}

// Err returns the failure that ended the exchange, if any.
func (e *Exchange) Err() error {
	return e.err
}

// Close releases the exchange. Closing before the stream ended rolls the
// user turn back.
func (e *Exchange) Close() error {
	if !e.done {
		e.abort(nil)
	}
	return nil
}

func (e *Exchange) abort(cause error) {
	if e.done {
		return
	}
	if cause != nil {
		e.fail(fmt.Errorf("%w: %w", ErrAborted, cause))
		return
	}
	e.fail(ErrAborted)
}

func (e *Exchange) finish() {
	e.done = true
	e.stream.Close()
	e.cancel()
	e.reply, e.replied = e.session.commit(e.mark, e.buf.String())
	if !e.replied {
		e.session.logger.Warn("model returned an empty reply", zap.String("model", e.session.model))
	}
}

func (e *Exchange) fail(err error) {
	e.done = true
	e.err = err
	e.stream.Close()
	e.cancel()
	e.session.rollback(e.mark)
	e.session.logger.Warn("exchange failed, user turn rolled back",
		zap.String("model", e.session.model),
		zap.Int("discardedBytes", e.buf.Len()),
		zap.Error(err))
}

func cloneTurns(turns []chat.Turn) []chat.Turn {
	out := make([]chat.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
