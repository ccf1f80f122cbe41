package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/handler/analysis"
	"github.com/mri-lab/mri-console/internal/handler/auth"
	"github.com/mri-lab/mri-console/internal/handler/chat"
	"github.com/mri-lab/mri-console/internal/handler/dashboard"
	"github.com/mri-lab/mri-console/internal/handler/reconstruction"
	"github.com/mri-lab/mri-console/internal/handler/training"
	"github.com/mri-lab/mri-console/internal/handler/ws"
	middlewarePkg "github.com/mri-lab/mri-console/internal/middleware"
	analysisService "github.com/mri-lab/mri-console/internal/service/analysis"
	authService "github.com/mri-lab/mri-console/internal/service/auth"
	chatService "github.com/mri-lab/mri-console/internal/service/chat"
	reconService "github.com/mri-lab/mri-console/internal/service/reconstruction"
	trainingService "github.com/mri-lab/mri-console/internal/service/training"
	"github.com/mri-lab/mri-console/internal/service/tts"
)

// Services 路由依赖的后端服务
type Services struct {
	Auth           *authService.Service
	Chat           *chatService.Service
	Reconstruction *reconService.Service
	Analysis       *analysisService.Service
	Training       *trainingService.Simulator
	TTS            chat.Synthesizer
	Hub            *ws.Hub
	Metrics        bool
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	log := svc.Logger
	if log == nil {
		log = zap.NewNop()
	}
	hub := svc.Hub
	if hub == nil {
		hub = ws.NewHub(log)
	}
	synth := svc.TTS
	if synth == nil {
		synth = tts.Silent{}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	if svc.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		// Public routes
		auth.New(svc.Auth, log).RegisterRoutes(api)

		// WebSocket authenticates with the token query parameter
		ws.New(hub, svc.Auth, log).RegisterRoutes(api)

		api.Group(func(protected chi.Router) {
			protected.Use(middlewarePkg.RequireAuth(svc.Auth))

			chat.New(svc.Chat, synth, log).RegisterRoutes(protected)
			reconstruction.New(svc.Reconstruction, hub, log).RegisterRoutes(protected)
			analysis.New(svc.Analysis, log).RegisterRoutes(protected)
			training.New(svc.Training, log).RegisterRoutes(protected)
			dashboard.New(svc.Reconstruction, svc.Chat, svc.Training).RegisterRoutes(protected)
		})
	})

	return r
}
