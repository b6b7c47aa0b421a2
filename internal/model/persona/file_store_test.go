package persona

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFileStoreList(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "ranger.prompt", "  You are a stoic ranger.\n")
	writePrompt(t, dir, "dark_elf.prompt", "---\nname: Vaelith\nopening: Moonlight pools in the ruined shrine.\n---\nYou are a dark elf.\n")
	writePrompt(t, dir, "empty.prompt", "   \n")
	writePrompt(t, dir, "notes.txt", "ignored")

	store := NewFileStore(filepath.Join(dir, "*.prompt"), nil)
	items := store.List()
	require.Len(t, items, 2)

	assert.Equal(t, "dark_elf", items[0].ID)
	assert.Equal(t, "Vaelith", items[0].Name)
	assert.Equal(t, "Moonlight pools in the ruined shrine.", items[0].OpeningLine)
	assert.Equal(t, "You are a dark elf.", items[0].Instructions)

	assert.Equal(t, "ranger", items[1].ID)
	assert.Equal(t, "ranger.prompt", items[1].File)
	assert.Equal(t, "Ranger", items[1].Name)
	assert.Equal(t, DefaultOpeningLine, items[1].OpeningLine)
	assert.Equal(t, "You are a stoic ranger.", items[1].Instructions)
}

func TestFileStoreListEmptyDirectory(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "*.prompt"), nil)
	assert.Empty(t, store.List())
}

func TestFileStoreRecursivePattern(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "a/b/bard.prompt", "You are a bard.")

	store := NewFileStore(filepath.Join(dir, "**", "*.prompt"), nil)
	items := store.List()
	require.Len(t, items, 1)
	assert.Equal(t, "bard", items[0].ID)

	p, err := store.Resolve("bard")
	require.NoError(t, err)
	assert.Equal(t, "You are a bard.", p.Instructions)
}

func TestFileStoreResolve(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "ranger.prompt", "You are a stoic ranger.")
	writePrompt(t, dir, "blank.prompt", "\n\n")
	writePrompt(t, dir, "secret.txt", "not a persona")
	store := NewFileStore(filepath.Join(dir, "*.prompt"), nil)

	byID, err := store.Resolve("ranger")
	require.NoError(t, err)
	byFile, err := store.Resolve("ranger.prompt")
	require.NoError(t, err)
	assert.Equal(t, byID, byFile)

	cases := []string{"", "bard", "blank", "secret", "secret.txt", "../ranger.prompt"}
	for _, ref := range cases {
		_, err := store.Resolve(ref)
		assert.Truef(t, errors.Is(err, ErrNotFound), "ref %q: got %v", ref, err)
	}
}

func TestParseFrontMatter(t *testing.T) {
	p, err := Parse("x/old_sage.prompt", []byte("\xef\xbb\xbf---\nname: Orrin\n---\n\nSpeak slowly.\n"))
	require.NoError(t, err)
	assert.Equal(t, "old_sage", p.ID)
	assert.Equal(t, "old_sage.prompt", p.File)
	assert.Equal(t, "Orrin", p.Name)
	assert.Equal(t, DefaultOpeningLine, p.OpeningLine)
	assert.Equal(t, "Speak slowly.", p.Instructions)

	_, err = Parse("broken.prompt", []byte("---\nname: [unclosed\n---\nbody"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Parse("header_only.prompt", []byte("---\nname: Ghost\n---\n"))
	assert.ErrorIs(t, err, ErrNotFound)

	// An unterminated header is treated as plain text.
	p, err = Parse("plain.prompt", []byte("---\nno closing delimiter"))
	require.NoError(t, err)
	assert.Equal(t, "---\nno closing delimiter", p.Instructions)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "gone.prompt"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIDAndDisplayName(t *testing.T) {
	assert.Equal(t, "ranger", IDFromFile("/tmp/ranger.prompt"))
	assert.Equal(t, "tar", IDFromFile("tar.gz.prompt"))
	assert.Equal(t, ".hidden", IDFromFile(".hidden"))
	assert.Equal(t, "Dark Elf", DisplayName("dark_elf"))
	assert.Equal(t, "Old Sea Dog", DisplayName("old-sea_dog"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore([]Persona{
		{ID: "ranger", File: "ranger.prompt", Instructions: "Be terse."},
		{ID: "ghost", File: "ghost.prompt"},
	})
	assert.Len(t, store.List(), 2)

	p, err := store.Resolve("ranger.prompt")
	require.NoError(t, err)
	assert.Equal(t, "ranger", p.ID)

	_, err = store.Resolve("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
