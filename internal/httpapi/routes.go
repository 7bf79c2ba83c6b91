package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hexfog-backend/internal/auth"
	"github.com/DoyleJ11/hexfog-backend/internal/hub"
	"github.com/DoyleJ11/hexfog-backend/internal/store"
	"github.com/DoyleJ11/hexfog-backend/internal/ws"
)

type Deps struct {
	Hub      *hub.Hub
	Store    store.Store
	Verifier *auth.Verifier
	WS       ws.Config
	Log      *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	a := &api{hub: d.Hub, store: d.Store, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	// The websocket authenticates itself so it can accept ?token=.
	r.Get("/ws", ws.Handler(d.Hub, d.Verifier, d.WS, log))

	r.Group(func(r chi.Router) {
		r.Use(d.Verifier.Middleware)

		r.Post("/rooms", a.CreateRoom)
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/beacon", a.GetBeacon)
			r.Get("/revealed", a.GetRevealed)
			r.Get("/presence", a.GetPresence)
		})
		r.Route("/maps/{mapID}/layers", func(r chi.Router) {
			r.Post("/", a.CreateLayer)
			r.Get("/", a.ListLayers)
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
