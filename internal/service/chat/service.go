package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
)

type entry struct {
	info    chat.Session
	session *Session
}

// Service keeps server-held sessions. Sessions share no state with each other.
type Service struct {
	personas  persona.Store
	transport Transport
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]entry
}

// NewService bootstraps the in-memory session registry.
func NewService(personas persona.Store, transport Transport, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		personas:  personas,
		transport: transport,
		logger:    logger,
		sessions:  make(map[string]entry),
	}
}

// Open resolves a persona and builds a session that is not registered.
func (s *Service) Open(_ context.Context, personaRef, model string, history []chat.Turn) (*Session, error) {
	if strings.TrimSpace(personaRef) == "" {
		return nil, ErrPersonaRequired
	}
	if strings.TrimSpace(model) == "" {
		return nil, ErrModelRequired
	}
	if s.personas == nil {
		return nil, errors.New("chat: persona store unavailable")
	}

	p, err := s.personas.Resolve(personaRef)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithLogger(s.logger.With(zap.String("persona", p.ID)))}
	if len(history) > 0 {
		opts = append(opts, WithHistory(history))
	}
	return NewSession(p, model, s.transport, opts...)
}

// CreateSession provisions an anonymous session bound to a persona and model.
func (s *Service) CreateSession(ctx context.Context, personaRef, model string) (chat.Session, error) {
	session, err := s.Open(ctx, personaRef, model, nil)
	if err != nil {
		return chat.Session{}, err
	}

	info := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: session.Persona().ID,
		Model:     session.Model(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[info.ID] = entry{info: info, session: session}
	s.mu.Unlock()

	s.logger.Info("session created",
		zap.String("session", info.ID),
		zap.String("persona", info.PersonaID),
		zap.String("model", info.Model))
	return info, nil
}

// GetSession retrieves session metadata by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return e.info, nil
}

// Session returns the live session for an identifier.
func (s *Service) Session(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// LoadTranscript returns the recorded turns for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Transcript(), nil
}

// DeleteSession forgets a session. An exchange still in flight finishes on
// the detached session object.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.logger.Info("session deleted", zap.String("session", sessionID))
	return nil
}

// Count returns the number of registered sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
