// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// RouterConfig configures NewRouter
type RouterConfig struct {
	Repository     ItemRepository
	Auth           *JWTAuth // Optional; when nil every request acts as DefaultUserID
	AllowedOrigins []string // CORS origins; empty disables CORS headers
	Logger         *slog.Logger
}

// NewRouter wires the todo API routes with access logging, CORS and optional auth
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handlers := NewHTTPTodoHandlers(cfg.Repository, logger)

	r := mux.NewRouter()
	r.Use(accessLog(logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors(cfg.AllowedOrigins))
	}

	// Health checks (no auth required)
	r.Methods(http.MethodGet).Path(PathRoot).HandlerFunc(handlers.HandleRoot)
	r.Methods(http.MethodGet).Path(PathHealth).HandlerFunc(handlers.HandleHealth)

	api := r.NewRoute().Subrouter()
	if cfg.Auth != nil {
		api.Use(cfg.Auth.Middleware)
	}
	api.Methods(http.MethodGet).Path(PathTodos).HandlerFunc(handlers.HandleList)
	api.Methods(http.MethodPost).Path(PathTodos).HandlerFunc(handlers.HandleCreate)
	api.Methods(http.MethodGet).Path(PathTodoByID).HandlerFunc(handlers.HandleGet)
	api.Methods(http.MethodPatch).Path(PathTodoByID).HandlerFunc(handlers.HandleToggle)
	api.Methods(http.MethodDelete).Path(PathTodoByID).HandlerFunc(handlers.HandleDelete)

	// Preflight requests never reach the API handlers
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func accessLog(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Debug("handled", "method", r.Method, "url", r.URL.String(), "duration", m.Duration, "status", m.Code)
		})
	}
}

func cors(origins []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && slices.Contains(origins, origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", strings.Join([]string{
					http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch,
				}, ", "))
				h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
				h.Add("Vary", "Origin")
			}
			next.ServeHTTP(w, r)
		})
	}
}
