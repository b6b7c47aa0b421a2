package stream

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/handler/apierr"
	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	chatService "github.com/zhouzirui/ollama-tavern/internal/service/chat"
	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

// Handler manages streaming replies via Server-Sent Events
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.With(zap.String("handler", "stream"))}
}

// RegisterRoutes 注册 SSE 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := r.URL.Query().Get("message")
	if strings.TrimSpace(message) == "" {
		utils.RespondErrorCode(w, http.StatusBadRequest, apierr.CodeInvalidInput, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, utils.ErrStreamingUnsupported.Error())
		return
	}

	session, err := h.chatSvc.Session(r.Context(), sessionID)
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}

	ex, err := session.Submit(r.Context(), chat.Input{Content: message})
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}
	defer ex.Close()

	// The first fragment decides between a plain error reply and an event stream.
	frag, err := ex.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		apierr.Respond(w, h.logger, err)
		return
	}

	utils.SetupSSEHeaders(w)
	send := func(resp StreamResponse) bool {
		resp.SessionID = sessionID
		if werr := utils.SendSSEChunk(w, flusher, resp); werr != nil {
			h.logger.Info("client disconnected mid-stream", zap.String("session", sessionID), zap.Error(werr))
			return false
		}
		return true
	}

	if !send(StreamResponse{Event: "start", Content: session.Persona().Name}) {
		return
	}

	for ; err == nil; frag, err = ex.Recv() {
		if !send(StreamResponse{Event: "delta", Content: frag.Text}) {
			return
		}
	}

	if !errors.Is(err, io.EOF) {
		_, code := apierr.Classify(err)
		send(StreamResponse{Event: "error", Error: err.Error(), Code: code, Finished: true})
		return
	}

	reply, _ := ex.Reply()
	if !send(StreamResponse{Event: "message", Content: reply.Content}) {
		return
	}
	send(StreamResponse{Event: "end", Finished: true})
	h.logger.Debug("stream completed", zap.String("session", sessionID), zap.Int("chars", len(reply.Content)))
}
