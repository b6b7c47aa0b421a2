package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortName(t *testing.T) {
	assert.Equal(t, "llama3", ShortName("llama3:8b"))
	assert.Equal(t, "mistral", ShortName("mistral"))
	assert.Equal(t, "", ShortName(""))
}

func TestSizeLabel(t *testing.T) {
	assert.Equal(t, "unknown size", ModelInfo{}.SizeLabel())
	assert.Equal(t, "1.0 GiB", ModelInfo{Size: 1 << 30}.SizeLabel())
}
