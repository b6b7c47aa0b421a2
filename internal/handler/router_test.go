package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/ollama-tavern/internal/middleware"
	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
	chatService "github.com/zhouzirui/ollama-tavern/internal/service/chat"
	"github.com/zhouzirui/ollama-tavern/internal/service/chat/chattest"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	transport := &chattest.Transport{
		Fragments: []string{"The goblins ", "fled east."},
		Models:    []llm.ModelInfo{{Name: "llama3:8b", Size: 4661224676}},
	}
	store := persona.NewMemoryStore([]persona.Persona{{ID: "gm", File: "gm.prompt", Name: "Gm", Instructions: "You are the game master."}})
	chatSvc := chatService.NewService(store, transport, nil)

	srv := httptest.NewServer(NewRouter(store, chatSvc, transport, middleware.NewOrigins(nil), nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouterServesUIAndAPI(t *testing.T) {
	srv := newTestServer(t)

	for path, want := range map[string]int{
		"/":             http.StatusOK,
		"/script.js":    http.StatusOK,
		"/api/config":   http.StatusOK,
		"/api/personas": http.StatusOK,
		"/api/models":   http.StatusOK,
		"/api/health":   http.StatusOK,
		"/api/nothing":  http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("GET %s: expected %d, got %d", path, want, resp.StatusCode)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") == "" {
			t.Fatalf("GET %s: missing CORS header", path)
		}
	}
}

func TestRouterOriginalChatFlow(t *testing.T) {
	srv := newTestServer(t)

	payload, _ := json.Marshal(map[string]interface{}{
		"model":    "llama3:8b",
		"prompt":   "gm.prompt",
		"messages": []map[string]string{{"role": "user", "content": "Where did they go?"}},
	})
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line struct {
			Message *struct {
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid line %q: %v", scanner.Text(), err)
		}
		if line.Message != nil {
			text.WriteString(line.Message.Content)
		}
	}
	if text.String() != "The goblins fled east." {
		t.Fatalf("unexpected reply %q", text.String())
	}
}
