package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/spirit/backend/internal/handler/chat"
	"github.com/zhouzirui/spirit/backend/internal/handler/persona"
	"github.com/zhouzirui/spirit/backend/internal/handler/speech"
	"github.com/zhouzirui/spirit/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/spirit/backend/internal/middleware"
	personaModel "github.com/zhouzirui/spirit/backend/internal/model/persona"
	chatService "github.com/zhouzirui/spirit/backend/internal/service/chat"
	"github.com/zhouzirui/spirit/backend/pkg/utils"
)

// Dependencies 路由需要的服务。SpeechSvc 为 nil 时不注册 /speech 路由。
type Dependencies struct {
	Presets     []personaModel.Preset
	ChatSvc     *chatService.Service
	SpeechSvc   speech.SpeechService
	TTSLanguage string
	RateLimiter *middlewarePkg.RateLimiter
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		if deps.RateLimiter != nil {
			api.Use(deps.RateLimiter.Middleware)
		}

		persona.New(deps.ChatSvc, deps.Presets).RegisterRoutes(api)
		chat.New(deps.ChatSvc, deps.Presets).RegisterRoutes(api)
		stream.New(deps.ChatSvc).RegisterRoutes(api)
		speech.NewWebSocketHandler(deps.ChatSvc, deps.Presets).RegisterWebSocketRoutes(api)

		if deps.SpeechSvc != nil {
			speech.New(deps.SpeechSvc, deps.TTSLanguage).RegisterRoutes(api)
		}
	})

	return r
}
