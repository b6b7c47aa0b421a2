package persona

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultPattern matches prompt files in the working directory.
const DefaultPattern = "*.prompt"

var frontMatterDelim = []byte("---")

// frontMatter is the optional YAML header of a prompt file.
type frontMatter struct {
	Name    string `yaml:"name"`
	Opening string `yaml:"opening"`
}

// FileStore discovers personas from prompt files matching a glob pattern.
// Patterns support "**" for recursive matching.
type FileStore struct {
	pattern string
	logger  *zap.Logger
}

// NewFileStore creates a store over files matching pattern.
func NewFileStore(pattern string, logger *zap.Logger) *FileStore {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{pattern: pattern, logger: logger}
}

// Pattern returns the glob the store scans.
func (s *FileStore) Pattern() string {
	return s.pattern
}

// List scans the pattern and loads every readable prompt file.
func (s *FileStore) List() []Persona {
	paths, err := doublestar.FilepathGlob(s.pattern)
	if err != nil {
		s.logger.Warn("invalid persona pattern", zap.String("pattern", s.pattern), zap.Error(err))
		return nil
	}
	sort.Strings(paths)

	seen := make(map[string]struct{}, len(paths))
	items := make([]Persona, 0, len(paths))
	for _, path := range paths {
		p, err := Load(path)
		if err != nil {
			s.logger.Warn("skipping persona file", zap.String("path", path), zap.Error(err))
			continue
		}
		if _, dup := seen[p.ID]; dup {
			s.logger.Debug("duplicate persona id", zap.String("id", p.ID), zap.String("path", path))
			continue
		}
		seen[p.ID] = struct{}{}
		items = append(items, p)
	}
	return items
}

// Resolve finds a persona by id or file name among the files the pattern matches.
// Only matched files are ever opened, so refs cannot escape the pattern.
func (s *FileStore) Resolve(ref string) (Persona, error) {
	paths, err := doublestar.FilepathGlob(s.pattern)
	if err != nil {
		return Persona{}, fmt.Errorf("%w: invalid pattern %q: %v", ErrNotFound, s.pattern, err)
	}
	sort.Strings(paths)

	ref = strings.TrimSpace(ref)
	for _, path := range paths {
		if filepath.Base(path) != ref && IDFromFile(path) != ref {
			continue
		}
		p, err := Load(path)
		if err != nil {
			return Persona{}, err
		}
		return p, nil
	}
	return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// Load reads a single prompt file.
func Load(path string) (Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Persona{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Persona{}, fmt.Errorf("%w: read %s: %v", ErrNotFound, path, err)
	}
	return Parse(path, raw)
}

// Parse builds a persona from prompt file contents. The instructions are the
// trimmed body after an optional YAML front matter block.
func Parse(path string, raw []byte) (Persona, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var meta frontMatter
	body := raw
	if header, rest, ok := splitFrontMatter(raw); ok {
		if err := yaml.Unmarshal(header, &meta); err != nil {
			return Persona{}, fmt.Errorf("%w: %s: front matter: %v", ErrNotFound, path, err)
		}
		body = rest
	}

	instructions := strings.TrimSpace(string(body))
	if instructions == "" {
		return Persona{}, fmt.Errorf("%w: %s has no instructions", ErrNotFound, path)
	}

	id := IDFromFile(path)
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = DisplayName(id)
	}
	opening := strings.TrimSpace(meta.Opening)
	if opening == "" {
		opening = DefaultOpeningLine
	}

	return Persona{
		ID:           id,
		File:         filepath.Base(path),
		Name:         name,
		OpeningLine:  opening,
		Instructions: instructions,
	}, nil
}

func splitFrontMatter(raw []byte) (header, body []byte, ok bool) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return nil, raw, false
	}
	rest := trimmed[len(frontMatterDelim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(string(rest[:nl])) != "" {
		return nil, raw, false
	}
	rest = rest[nl+1:]

	for offset := 0; offset <= len(rest); {
		line := rest[offset:]
		end := bytes.IndexByte(line, '\n')
		if end < 0 {
			end = len(line)
		}
		if strings.TrimSpace(string(line[:end])) == string(frontMatterDelim) {
			header = rest[:offset]
			if offset+end < len(rest) {
				body = rest[offset+end+1:]
			}
			return header, body, true
		}
		offset += end + 1
	}
	return nil, raw, false
}
