package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/handler/apierr"
	"github.com/zhouzirui/ollama-tavern/internal/model/chat"
	chatService "github.com/zhouzirui/ollama-tavern/internal/service/chat"
	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

// maxBodyBytes bounds request bodies; images travel inline as base64.
const maxBodyBytes = 32 << 20

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.With(zap.String("handler", "chat")),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Post("/chat", h.handleChat)
}

type createSessionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	PersonaID string `json:"personaId"`
}

type personaView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OpeningLine string `json:"openingLine,omitempty"`
}

type sessionView struct {
	Session    chat.Session `json:"session"`
	Persona    personaView  `json:"persona"`
	Transcript []chat.Turn  `json:"transcript,omitempty"`
	Busy       bool         `json:"busy"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload createSessionRequest
	if err := decode(w, r, &payload); err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, apierr.CodeInvalidInput, "invalid request body")
		return
	}

	ref := payload.Prompt
	if ref == "" {
		ref = payload.PersonaID
	}
	info, err := h.chatSvc.CreateSession(r.Context(), ref, payload.Model)
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}
	session, err := h.chatSvc.Session(r.Context(), info.ID)
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionView{
		Session: info,
		Persona: viewPersona(session),
	})
}

// handleGetSession 返回会话信息与完整记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	info, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}
	session, err := h.chatSvc.Session(r.Context(), sessionID)
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionView{
		Session:    info,
		Persona:    viewPersona(session),
		Transcript: session.Transcript(),
		Busy:       session.Busy(),
	})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// chatRequest 同时支持服务端会话与无状态的整段历史两种形式。
type chatRequest struct {
	SessionID string   `json:"sessionId"`
	Content   string   `json:"content"`
	Images    []string `json:"images,omitempty"`

	Model    string        `json:"model"`
	Prompt   string        `json:"prompt"`
	Messages []wireMessage `json:"messages"`
}

// handleChat 以 NDJSON 流式返回助手回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := decode(w, r, &payload); err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, apierr.CodeInvalidInput, "invalid request body")
		return
	}

	var (
		session   *chatService.Session
		input     chat.Input
		sessionID string
		err       error
	)
	if payload.SessionID != "" {
		sessionID = payload.SessionID
		session, err = h.chatSvc.Session(r.Context(), sessionID)
		if err != nil {
			apierr.Respond(w, h.logger, err)
			return
		}
		input, err = toInput(payload.Content, payload.Images)
	} else {
		session, input, err = h.openStateless(r, payload)
	}
	if err != nil {
		apierr.Respond(w, h.logger, err)
		return
	}

	out, err := utils.NewNDJSONWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.relay(r, out, session, sessionID, input)
}

// openStateless builds an unregistered session from a full message history.
// The last message is the new user input; earlier ones seed the transcript.
func (h *Handler) openStateless(r *http.Request, payload chatRequest) (*chatService.Session, chat.Input, error) {
	if strings.TrimSpace(payload.Model) == "" || strings.TrimSpace(payload.Prompt) == "" {
		return nil, chat.Input{}, fmt.Errorf("%w: model and prompt are required", chatService.ErrInvalidInput)
	}
	if len(payload.Messages) == 0 {
		return nil, chat.Input{}, fmt.Errorf("%w: messages must not be empty", chatService.ErrInvalidInput)
	}

	last := payload.Messages[len(payload.Messages)-1]
	if chat.Role(last.Role) != chat.RoleUser {
		return nil, chat.Input{}, fmt.Errorf("%w: last message must come from the user", chatService.ErrInvalidInput)
	}
	input, err := toInput(last.Content, last.Images)
	if err != nil {
		return nil, chat.Input{}, err
	}

	history, err := normalizeHistory(payload.Messages[:len(payload.Messages)-1])
	if err != nil {
		return nil, chat.Input{}, err
	}

	session, err := h.chatSvc.Open(r.Context(), payload.Prompt, payload.Model, history)
	if err != nil {
		return nil, chat.Input{}, err
	}
	return session, input, nil
}

// streamLine mirrors the chunk shape of Ollama's /api/chat.
type streamLine struct {
	Model      string       `json:"model"`
	CreatedAt  time.Time    `json:"created_at"`
	Message    *lineMessage `json:"message,omitempty"`
	Done       bool         `json:"done"`
	DoneReason string       `json:"done_reason,omitempty"`
	SessionID  string       `json:"sessionId,omitempty"`
	Error      string       `json:"error,omitempty"`
	Code       string       `json:"code,omitempty"`
}

type lineMessage struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

func (h *Handler) relay(r *http.Request, out *utils.NDJSONWriter, session *chatService.Session, sessionID string, input chat.Input) {
	ex, err := session.Submit(r.Context(), input)
	if err != nil {
		apierr.Respond(out.ResponseWriter(), h.logger, err)
		return
	}
	defer ex.Close()

	line := func() streamLine {
		return streamLine{Model: session.Model(), CreatedAt: time.Now().UTC(), SessionID: sessionID}
	}

	for {
		frag, err := ex.Recv()
		if errors.Is(err, io.EOF) {
			done := line()
			done.Message = &lineMessage{Role: chat.RoleAssistant}
			done.Done = true
			done.DoneReason = "stop"
			if werr := out.Write(done); werr != nil {
				h.logger.Debug("client went away before done line", zap.Error(werr))
			}
			return
		}
		if err != nil {
			if !out.Started() {
				apierr.Respond(out.ResponseWriter(), h.logger, err)
				return
			}
			_, code := apierr.Classify(err)
			failed := line()
			failed.Done = true
			failed.Error = err.Error()
			failed.Code = code
			if werr := out.Write(failed); werr != nil {
				h.logger.Debug("client went away before error line", zap.Error(werr))
			}
			return
		}

		chunk := line()
		chunk.Message = &lineMessage{Role: chat.RoleAssistant, Content: frag.Text}
		if werr := out.Write(chunk); werr != nil {
			h.logger.Info("client disconnected mid-stream", zap.String("session", sessionID), zap.Error(werr))
			return
		}
	}
}

// normalizeHistory turns a client-held message list into alternating turns.
// System messages are dropped because the persona supplies its own, and a
// user message without a reply is dropped the same way a failed exchange is
// rolled back.
func normalizeHistory(messages []wireMessage) ([]chat.Turn, error) {
	turns := make([]chat.Turn, 0, len(messages))
	var pending *chat.Turn
	for i, m := range messages {
		switch chat.Role(m.Role) {
		case chat.RoleSystem:
			continue
		case chat.RoleUser:
			in, err := toInput(m.Content, m.Images)
			if err != nil {
				return nil, err
			}
			if in.Empty() {
				pending = nil
				continue
			}
			pending = &chat.Turn{Role: chat.RoleUser, Content: in.Trimmed(), Attachments: in.Attachments}
		case chat.RoleAssistant:
			if pending == nil || strings.TrimSpace(m.Content) == "" {
				continue
			}
			turns = append(turns, *pending, chat.Turn{Role: chat.RoleAssistant, Content: m.Content})
			pending = nil
		default:
			return nil, fmt.Errorf("%w: message %d has unknown role %q", chatService.ErrInvalidInput, i, m.Role)
		}
	}
	return turns, nil
}

func toInput(content string, images []string) (chat.Input, error) {
	in := chat.Input{Content: content}
	for i, img := range images {
		if strings.TrimSpace(img) == "" {
			continue
		}
		blob, err := utils.DecodeImage(img)
		if err != nil {
			return chat.Input{}, fmt.Errorf("%w: image %d: %v", chatService.ErrInvalidInput, i, err)
		}
		in.Attachments = append(in.Attachments, blob)
	}
	return in, nil
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func viewPersona(session *chatService.Session) personaView {
	p := session.Persona()
	return personaView{ID: p.ID, Name: p.Name, OpeningLine: p.OpeningLine}
}
