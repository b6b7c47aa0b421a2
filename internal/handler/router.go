package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/handler/catalog"
	"github.com/zhouzirui/ollama-tavern/internal/handler/chat"
	"github.com/zhouzirui/ollama-tavern/internal/handler/health"
	"github.com/zhouzirui/ollama-tavern/internal/handler/persona"
	"github.com/zhouzirui/ollama-tavern/internal/handler/stream"
	"github.com/zhouzirui/ollama-tavern/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/ollama-tavern/internal/middleware"
	personaModel "github.com/zhouzirui/ollama-tavern/internal/model/persona"
	aiService "github.com/zhouzirui/ollama-tavern/internal/service/ai"
	chatService "github.com/zhouzirui/ollama-tavern/internal/service/chat"
	"github.com/zhouzirui/ollama-tavern/internal/web"
	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, backend aiService.Backend, origins middlewarePkg.Origins, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(origins))

	r.Route("/api", func(api chi.Router) {
		catalog.New(personas, backend, logger).RegisterRoutes(api)
		persona.New(personas).RegisterRoutes(api)
		chat.New(chatSvc, logger).RegisterRoutes(api)
		stream.New(chatSvc, logger).RegisterRoutes(api)
		ws.New(chatSvc, origins, logger).RegisterRoutes(api)
		health.New(backend).RegisterRoutes(api)

		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			utils.RespondError(w, http.StatusNotFound, "not found")
		})
	})

	r.Handle("/*", web.Handler())

	return r
}
