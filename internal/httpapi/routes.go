package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/hub"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
	"github.com/DoyleJ11/lol-draft-room/internal/ws"
)

type Deps struct {
	Hub    *hub.Hub
	Store  store.Store
	Logger *zap.Logger
	WS     ws.Options

	// StoreInfo is reported by /healthz/db.
	StoreInfo map[string]string
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Post("/rooms", CreateRoom(d.Hub, d.Store, log))
	r.Get("/rooms/{id}", GetRoom(d.Hub, d.Store, log))
	r.Get("/rooms/{id}/events", GetEvents(d.Store, log))
	r.Get("/healthz", Healthz)
	r.Get("/healthz/db", HealthzDB(d.Store, d.StoreInfo))
	r.Get("/ws", ws.Handler(d.Hub, d.Store, log, d.WS))
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
