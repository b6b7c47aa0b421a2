// Package catalog serves what the setup screen needs: prompt files and models.
package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/model/llm"
	"github.com/zhouzirui/ollama-tavern/internal/model/persona"
	"github.com/zhouzirui/ollama-tavern/internal/service/ai"
	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

// Handler 提供模型与提示词目录
type Handler struct {
	personas persona.Store
	models   ai.Directory
	logger   *zap.Logger
}

// New 创建目录处理器
func New(personas persona.Store, models ai.Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{personas: personas, models: models, logger: logger}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.handleConfig)
	r.Get("/models", h.handleModels)
}

// modelView is one model entry as the browser renders it.
type modelView struct {
	Name          string `json:"name"`
	ShortName     string `json:"shortName"`
	Size          int64  `json:"size"`
	SizeLabel     string `json:"sizeLabel"`
	Family        string `json:"family,omitempty"`
	ParameterSize string `json:"parameterSize,omitempty"`
}

type configResponse struct {
	Prompts []string    `json:"prompts"`
	Models  []modelView `json:"models"`
}

// handleConfig 返回初始化页面所需的提示词文件与模型列表
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	personas := h.personas.List()
	prompts := make([]string, 0, len(personas))
	for _, p := range personas {
		prompts = append(prompts, p.File)
	}

	utils.RespondJSON(w, http.StatusOK, configResponse{
		Prompts: prompts,
		Models:  h.listModels(r),
	})
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.listModels(r))
}

func (h *Handler) listModels(r *http.Request) []modelView {
	models := ai.Discover(r.Context(), h.models, h.logger)
	views := make([]modelView, 0, len(models))
	for _, m := range models {
		views = append(views, toView(m))
	}
	return views
}

func toView(m llm.ModelInfo) modelView {
	return modelView{
		Name:          m.Name,
		ShortName:     m.ShortName(),
		Size:          m.Size,
		SizeLabel:     m.SizeLabel(),
		Family:        m.Family,
		ParameterSize: m.ParameterSize,
	}
}
