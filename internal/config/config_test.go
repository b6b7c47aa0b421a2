package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "OLLAMA_HOST", "OLLAMA_TIMEOUT", "PERSONA_PATTERN", "CORS_ALLOWED_ORIGINS", "LLM_PROVIDER", "ARK_MODEL", "ARK_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, 5*time.Minute, cfg.Ollama.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Ollama.ListTimeout)
	assert.Equal(t, "*.prompt", cfg.Persona.Pattern)
	assert.False(t, cfg.Ark.Enabled())
	assert.Empty(t, cfg.Server.AllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("OLLAMA_HOST", "gpu-box:11434/")
	t.Setenv("OLLAMA_TIMEOUT", "90s")
	t.Setenv("PERSONA_PATTERN", "prompts/**/*.prompt")
	t.Setenv("ARK_TEMPERATURE", "0.7")
	t.Setenv("ARK_MAX_TOKENS", "512")
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://localhost:3000, ,https://ui.example ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.Host)
	assert.Equal(t, 90*time.Second, cfg.Ollama.Timeout)
	assert.Equal(t, "prompts/**/*.prompt", cfg.Persona.Pattern)
	require.NotNil(t, cfg.Ark.Temperature)
	assert.InDelta(t, 0.7, *cfg.Ark.Temperature, 1e-9)
	require.NotNil(t, cfg.Ark.MaxTokens)
	assert.Equal(t, 512, *cfg.Ark.MaxTokens)
	assert.Equal(t, []string{"http://localhost:3000", "https://ui.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"PORT":           "80 80",
		"OLLAMA_TIMEOUT": "soon",
		"ARK_TOP_P":      "high",
		"ARK_MAX_TOKENS": "many",
		"LLM_PROVIDER":   "gpt",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestArkProviderRequiresCredentials(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ark")
	t.Setenv("ARK_MODEL", "")
	t.Setenv("ARK_API_KEY", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("ARK_MODEL", "doubao-pro")
	t.Setenv("ARK_API_KEY", "key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderArk, cfg.LLM.Provider)
	assert.True(t, cfg.Ark.Enabled())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://from-env:11434")

	v := New()
	v.Set("ollama.host", "http://from-flag:11434")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "http://from-flag:11434", cfg.Ollama.Host)
}
