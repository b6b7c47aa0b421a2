package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/ollama-tavern/internal/middleware"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
	chatservice "github.com/zhouzirui/ollama-tavern/internal/service/chat"
	"github.com/zhouzirui/ollama-tavern/internal/service/chat/chattest"
)

func dial(t *testing.T, transport *chattest.Transport) (*websocket.Conn, *chatservice.Service, string) {
	t.Helper()
	store := persona.NewMemoryStore([]persona.Persona{{ID: "ranger", File: "ranger.prompt", Name: "Ranger", Instructions: "Be terse."}})
	chatSvc := chatservice.NewService(store, transport, nil)
	info, err := chatSvc.CreateSession(context.Background(), "ranger", "modelA")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	r := chi.NewRouter()
	New(chatSvc, middleware.NewOrigins(nil), nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + info.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if msg := read(t, conn); msg.Type != "connected" || msg.Content != "Ranger" {
		t.Fatalf("unexpected greeting %+v", msg)
	}
	return conn, chatSvc, info.ID
}

func read(t *testing.T, conn *websocket.Conn) OutboundMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg OutboundMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string) []OutboundMessage {
	t.Helper()
	var seen []OutboundMessage
	for {
		msg := read(t, conn)
		seen = append(seen, msg)
		if msg.Type == kind {
			return seen
		}
	}
}

func TestWebSocketExchange(t *testing.T) {
	conn, chatSvc, id := dial(t, &chattest.Transport{Fragments: []string{"Tracks ", "lead north."}})

	if err := conn.WriteJSON(InboundMessage{Type: "message", Content: "Which way?"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	seen := readUntil(t, conn, "done")

	var text strings.Builder
	for _, msg := range seen {
		if msg.Type == "delta" {
			text.WriteString(msg.Content)
		}
	}
	if text.String() != "Tracks lead north." || seen[len(seen)-1].Content != "Tracks lead north." {
		t.Fatalf("unexpected frames %+v", seen)
	}

	transcript, _ := chatSvc.LoadTranscript(context.Background(), id)
	if len(transcript) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(transcript))
	}
}

func TestWebSocketAbortRollsBack(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	conn, chatSvc, id := dial(t, &chattest.Transport{Fragments: []string{"never"}, Gate: gate})

	if err := conn.WriteJSON(InboundMessage{Type: "message", Content: "Wait"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "start")

	if err := conn.WriteJSON(InboundMessage{Type: "abort"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "aborted")

	deadline := time.Now().Add(2 * time.Second)
	for {
		transcript, _ := chatSvc.LoadTranscript(context.Background(), id)
		if len(transcript) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected rollback, transcript has %d turns", len(transcript))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketBusyAndInvalid(t *testing.T) {
	gate := make(chan struct{})
	conn, _, _ := dial(t, &chattest.Transport{Fragments: []string{"ok"}, Gate: gate})

	if err := conn.WriteJSON(InboundMessage{Type: "message", Content: "first"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "start")
	if err := conn.WriteJSON(InboundMessage{Type: "message", Content: "second"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readUntil(t, conn, "error"); msg[len(msg)-1].Code != "session_busy" {
		t.Fatalf("expected session_busy, got %+v", msg[len(msg)-1])
	}

	close(gate)
	readUntil(t, conn, "done")

	if err := conn.WriteJSON(InboundMessage{Type: "message", Content: "  "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readUntil(t, conn, "error"); msg[len(msg)-1].Code != "invalid_input" {
		t.Fatalf("expected invalid_input, got %+v", msg[len(msg)-1])
	}

	if err := conn.WriteJSON(InboundMessage{Type: "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "error")

	if err := conn.WriteJSON(InboundMessage{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, "pong")
}

func TestWebSocketChecksOrigin(t *testing.T) {
	store := persona.NewMemoryStore([]persona.Persona{{ID: "ranger", File: "ranger.prompt", Name: "Ranger", Instructions: "Be terse."}})
	chatSvc := chatservice.NewService(store, &chattest.Transport{}, nil)
	info, err := chatSvc.CreateSession(context.Background(), "ranger", "modelA")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	r := chi.NewRouter()
	New(chatSvc, middleware.NewOrigins([]string{"https://ui.example"}), nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + info.ID

	cases := []struct {
		origin string
		ok     bool
	}{
		{"https://evil.example", false},
		{"https://ui.example", true},
		{srv.URL, true},
	}
	for _, tc := range cases {
		header := http.Header{"Origin": []string{tc.origin}}
		conn, resp, err := websocket.DefaultDialer.Dial(url, header)
		if tc.ok {
			if err != nil {
				t.Fatalf("origin %s: dial: %v", tc.origin, err)
			}
			conn.Close()
			continue
		}
		if err == nil {
			conn.Close()
			t.Fatalf("origin %s: expected the upgrade to be refused", tc.origin)
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("origin %s: expected 403, got %v", tc.origin, resp)
		}
	}
}
