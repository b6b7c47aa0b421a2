package chat

import "strings"

// Role tags a turn with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one role-tagged message of a conversation.
type Turn struct {
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	Attachments [][]byte `json:"images,omitempty"`
}

// Clone returns a copy that shares no slices with t.
func (t Turn) Clone() Turn {
	out := Turn{Role: t.Role, Content: t.Content}
	if len(t.Attachments) > 0 {
		out.Attachments = make([][]byte, len(t.Attachments))
		for i, a := range t.Attachments {
			out.Attachments[i] = append([]byte(nil), a...)
		}
	}
	return out
}

// Input is what a user hands to a session for one exchange.
type Input struct {
	Content     string
	Attachments [][]byte
}

// Trimmed returns the content with surrounding whitespace removed.
func (in Input) Trimmed() string {
	return strings.TrimSpace(in.Content)
}

// Empty reports whether the input carries neither text nor attachments.
func (in Input) Empty() bool {
	return in.Trimmed() == "" && len(in.Attachments) == 0
}

// Fragment is one incremental piece of streamed assistant text.
type Fragment struct {
	Text string `json:"text"`
}
