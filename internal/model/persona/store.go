package persona

import "fmt"

// Store exposes persona discovery and resolution.
type Store interface {
	// List is a best-effort scan; unreadable entries are skipped.
	List() []Persona
	// Resolve returns the persona for an id or file name, or ErrNotFound.
	Resolve(ref string) (Persona, error)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the stored personas.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// Resolve looks up a persona by id or file name.
func (s *MemoryStore) Resolve(ref string) (Persona, error) {
	for _, item := range s.items {
		if item.Matches(ref) && item.Instructions != "" {
			return item, nil
		}
	}
	return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}
