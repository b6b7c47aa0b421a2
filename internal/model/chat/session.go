package chat

import "time"

// Session captures the public metadata of a server-held conversation.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}
