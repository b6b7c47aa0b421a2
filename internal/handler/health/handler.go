package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

// Pinger reports whether the model backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

// Handler 健康检查处理器
type Handler struct {
	backend Pinger
	timeout time.Duration
}

// New 创建健康检查处理器
func New(backend Pinger) *Handler {
	return &Handler{backend: backend, timeout: 3 * time.Second}
}

// RegisterRoutes 注册健康检查路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

type status struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		utils.RespondJSON(w, http.StatusServiceUnavailable, status{Status: "unavailable", Backend: h.backend.Name(), Error: err.Error()})
		return
	}
	utils.RespondJSON(w, http.StatusOK, status{Status: "ok", Backend: h.backend.Name()})
}
