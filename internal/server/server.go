// Package server exposes the project service over HTTP with huma on chi.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"fieldline/internal/engine"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type bodyPresentKey struct{}

// body wraps a response payload for huma.
type body[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *body[T] { return &body[T]{Body: v} }

// New returns an HTTP handler exposing the Fieldline project service.
func New(cfg Config) (http.Handler, error) {
	basePath := "/" + strings.Trim(cfg.BasePath, "/")
	if basePath == "/" {
		basePath = "/v0"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log.Named("auth")
	}

	huma.DefaultArrayNullable = false
	installErrorEnvelope()

	router := chi.NewRouter()
	router.Use(middleware.RequestID, requestLogger(log), markBody)
	router.Use(newAuthenticator(cfg.Auth, cfg.Engine.Repo).middleware(basePath))

	hcfg := huma.DefaultConfig("Fieldline API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	routes{e: cfg.Engine}.register(group)
	mountDocs(router, api, basePath)
	return router, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

// markBody records whether the request carried a body so handlers can
// reject empty writes before huma fills in zero values.
func markBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		present := r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyPresentKey{}, present)))
	})
}

func requireBody(ctx context.Context) huma.StatusError {
	if present, _ := ctx.Value(bodyPresentKey{}).(bool); !present {
		return newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	return nil
}
