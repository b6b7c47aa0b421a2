package llm

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ModelInfo describes one model available on the serving backend.
type ModelInfo struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	Family        string    `json:"family,omitempty"`
	ParameterSize string    `json:"parameterSize,omitempty"`
	ModifiedAt    time.Time `json:"modifiedAt,omitempty"`
}

// ShortName drops the tag: "llama3:8b" -> "llama3".
func (m ModelInfo) ShortName() string {
	return ShortName(m.Name)
}

// SizeLabel renders the size in binary units, or "unknown size".
func (m ModelInfo) SizeLabel() string {
	if m.Size <= 0 {
		return "unknown size"
	}
	return humanize.IBytes(uint64(m.Size))
}

// ShortName returns the part of a model identifier before the first ':'.
func ShortName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}
