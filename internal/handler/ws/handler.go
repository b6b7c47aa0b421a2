package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/handler/apierr"
	"github.com/zhouzirui/ollama-tavern/internal/middleware"
	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	chatService "github.com/zhouzirui/ollama-tavern/internal/service/chat"
	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Handler WebSocket 对话处理器
type Handler struct {
	chatSvc  *chatService.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service, origins middleware.Origins, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.With(zap.String("handler", "ws")),
		upgrader: websocket.Upgrader{
			CheckOrigin:     origins.Allowed,
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// InboundMessage is a client frame. Type is "message", "abort" or "ping".
type InboundMessage struct {
	Type    string   `json:"type"`
	Content string   `json:"content,omitempty"`
	Images  []string `json:"images,omitempty"`
}

// OutboundMessage is a server frame. Type is "connected", "start", "delta",
// "done", "aborted", "error" or "pong".
type OutboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connection serialises writes; gorilla allows one writer at a time.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *connection) send(msg OutboundMessage) error {
	msg.SessionID = c.sessionID
	msg.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.Session(r.Context(), sessionID)
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &connection{conn: ws, sessionID: sessionID}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go h.pingLoop(ctx, c)

	h.logger.Info("connection opened", zap.String("session", sessionID))
	_ = c.send(OutboundMessage{Type: "connected", Content: session.Persona().Name})

	var (
		wg        sync.WaitGroup
		runMu     sync.Mutex
		cancelRun context.CancelFunc
	)
	defer func() {
		runMu.Lock()
		if cancelRun != nil {
			cancelRun()
		}
		runMu.Unlock()
		wg.Wait()
	}()

	for {
		var msg InboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("read error", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "message":
			input, err := toInput(msg)
			if err != nil {
				h.sendError(c, err)
				continue
			}
			runCtx, stop := context.WithCancel(ctx)
			ex, err := session.Submit(runCtx, input)
			if err != nil {
				stop()
				h.sendError(c, err)
				continue
			}
			runMu.Lock()
			cancelRun = stop
			runMu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer stop()
				h.relay(runCtx, c, ex)
			}()
		case "abort":
			runMu.Lock()
			if cancelRun != nil {
				cancelRun()
			}
			runMu.Unlock()
		case "ping":
			_ = c.send(OutboundMessage{Type: "pong"})
		default:
			_ = c.send(OutboundMessage{Type: "error", Error: "unsupported message type: " + msg.Type, Code: apierr.CodeInvalidInput})
		}
	}
}

func (h *Handler) relay(ctx context.Context, c *connection, ex *chatService.Exchange) {
	defer ex.Close()

	if err := c.send(OutboundMessage{Type: "start"}); err != nil {
		return
	}
	for {
		frag, err := ex.Recv()
		if errors.Is(err, io.EOF) {
			reply, _ := ex.Reply()
			_ = c.send(OutboundMessage{Type: "done", Content: reply.Content})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				_ = c.send(OutboundMessage{Type: "aborted"})
				return
			}
			h.sendError(c, err)
			return
		}
		if err := c.send(OutboundMessage{Type: "delta", Content: frag.Text}); err != nil {
			h.logger.Info("client went away mid-stream", zap.String("session", c.sessionID), zap.Error(err))
			return
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendError(c *connection, err error) {
	_, code := apierr.Classify(err)
	_ = c.send(OutboundMessage{Type: "error", Error: err.Error(), Code: code})
}

func toInput(msg InboundMessage) (chat.Input, error) {
	in := chat.Input{Content: msg.Content}
	for _, img := range msg.Images {
		if strings.TrimSpace(img) == "" {
			continue
		}
		blob, err := utils.DecodeImage(img)
		if err != nil {
			return chat.Input{}, fmt.Errorf("%w: %v", chatService.ErrInvalidInput, err)
		}
		in.Attachments = append(in.Attachments, blob)
	}
	return in, nil
}
