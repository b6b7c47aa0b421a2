package chat

import (
	"errors"

	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrModelRequired   = errors.New("model is required")
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotFound is returned when a persona does not resolve.
	ErrNotFound = persona.ErrNotFound
	// ErrInvalidInput rejects an empty turn or malformed history.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionBusy is returned when an exchange is already in flight.
	ErrSessionBusy = errors.New("session busy")
	// ErrTransportFailure wraps any failure of the streaming transport.
	ErrTransportFailure = errors.New("transport failure")
	// ErrAborted is recorded when the caller abandons an exchange before it ends.
	ErrAborted = errors.New("exchange aborted")
)
