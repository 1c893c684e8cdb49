package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"reelrender/internal/httpapi/handlers"
	"reelrender/internal/httpkit"
	"reelrender/internal/pkg/logger"
	"reelrender/internal/pkg/middleware"
)

type Deps struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	log := d.Handlers.Log
	if log == nil {
		log = logger.NewDefault()
		d.Handlers.Log = log
	}
	h := handlers.New(d.Handlers)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- RENDER ----
	r.Post("/render", middleware.WrapHandler(log, h.PostRender))
	r.Get("/renders/{name}", middleware.WrapHandler(log, h.GetRender))

	// ---- ADMIN ----
	r.Get("/admin", middleware.WrapHandler(log, h.GetAdmin))
	r.Post("/admin", middleware.WrapHandler(log, h.PostAdmin))
	r.Get("/admin/settings", middleware.WrapHandler(log, h.GetAdminSettings))

	return r
}
