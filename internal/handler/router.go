package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"schema-migrator/config"
	"schema-migrator/internal/middleware"
	"schema-migrator/pkg/httputil"
)

// NewRouter はルーターを生成する。OTEL_ENABLEDの場合はotelhttpでラップする。
func NewRouter(h *MigrationHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// ルート定義
	r.Route("/v1/migrations", func(r chi.Router) {
		r.Get("/", h.ListMigrations)
		r.Get("/preview", h.PreviewMigrations)
		r.Post("/apply", h.ApplyMigrations)
	})

	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, cfg.OtelServiceName)
	}
	return r
}
