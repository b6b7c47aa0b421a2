package persona

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建persona处理器
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/personas/{personaID}", h.handleGetPersona)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas := h.personas.List()
	if personas == nil {
		personas = []persona.Persona{}
	}
	utils.RespondJSON(w, http.StatusOK, personas)
}

// handleGetPersona 按 id 或文件名查找 persona
func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := h.personas.Resolve(chi.URLParam(r, "personaID"))
	if err != nil {
		if errors.Is(err, persona.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "persona not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
