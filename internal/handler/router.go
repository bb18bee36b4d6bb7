package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-coach/internal/handler/chat"
	"github.com/zhouzirui/z-coach/internal/handler/speech"
	"github.com/zhouzirui/z-coach/internal/middleware"
	"github.com/zhouzirui/z-coach/internal/service/conversation"
	"github.com/zhouzirui/z-coach/internal/service/emotion"
	"github.com/zhouzirui/z-coach/internal/service/reply"
	speechsvc "github.com/zhouzirui/z-coach/internal/service/speech"
	"github.com/zhouzirui/z-coach/pkg/utils"
)

// Services 是路由所需的核心服务。
type Services struct {
	Store        conversation.Store
	Generator    reply.Generator
	Synthesizer  speechsvc.Synthesizer
	Tone         emotion.Classifier
	HistoryLimit int

	// 仅用于健康检查上报。
	AIEnabled     bool
	SpeechEnabled bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	chatHandler := chat.New(chat.Options{
		Store:        svc.Store,
		Generator:    svc.Generator,
		Synthesizer:  svc.Synthesizer,
		Tone:         svc.Tone,
		HistoryLimit: svc.HistoryLimit,
		Logger:       logger,
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status": "healthy",
				"ai":     svc.AIEnabled,
				"speech": svc.SpeechEnabled,
			})
		})

		chatHandler.RegisterRoutes(api)

		if svc.Synthesizer != nil {
			speech.New(svc.Synthesizer, logger).RegisterRoutes(api)
		}
	})

	return r
}
