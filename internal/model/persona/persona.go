package persona

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrNotFound is returned when an identifier does not map to a readable persona.
var ErrNotFound = errors.New("persona not found")

// DefaultOpeningLine sets the scene when a persona file does not provide its own.
const DefaultOpeningLine = "The sun dips below the horizon, casting long, purple shadows across the rugged mountainside. " +
	"You stand at the edge of the Whispering Woods, finding fresh, clumsy goblin tracks leading into the gloom."

// Persona is a named set of system instructions loaded from a prompt file.
type Persona struct {
	ID           string `json:"id"`
	File         string `json:"file"`
	Name         string `json:"name"`
	OpeningLine  string `json:"openingLine,omitempty"`
	Instructions string `json:"-"`
}

// Matches reports whether ref names this persona, either by id or by file name.
func (p Persona) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	return ref == p.ID || ref == p.File
}

// IDFromFile derives the persona id from a prompt file path: "dir/ranger.prompt" -> "ranger".
func IDFromFile(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// DisplayName turns an id like "dark_elf" into "Dark Elf".
func DisplayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
