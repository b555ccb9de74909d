// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mobiletoly/go-overtodo/internal/auth"
)

// HTTPTodoHandlers provides HTTP handlers for the todo REST API
type HTTPTodoHandlers struct {
	repo   ItemRepository
	logger *slog.Logger
}

// NewHTTPTodoHandlers creates a new instance of todo handlers
func NewHTTPTodoHandlers(repo ItemRepository, logger *slog.Logger) *HTTPTodoHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTodoHandlers{
		repo:   repo,
		logger: logger,
	}
}

// HandleRoot is the root health check
func (h *HTTPTodoHandlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "OK"})
}

// HandleHealth returns the API health status
func (h *HTTPTodoHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "healthy"})
}

// HandleList returns all todos of the caller in creation order
func (h *HTTPTodoHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDOr(r.Context(), DefaultUserID)
	items, err := h.repo.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list todos", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, MsgListFailed)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleGet returns a single todo
func (h *HTTPTodoHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDOr(r.Context(), DefaultUserID)
	item, err := h.repo.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.writeRepoError(w, err, MsgListFailed, userID)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleCreate creates a todo from {"body": "..."} and returns it with its stable id
func (h *HTTPTodoHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDOr(r.Context(), DefaultUserID)

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, MsgInvalidRequest)
		return
	}

	item, err := h.repo.Create(r.Context(), userID, req.Body)
	if err != nil {
		h.writeRepoError(w, err, MsgCreateFailed, userID)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// HandleToggle flips the complete flag and returns the updated todo
func (h *HTTPTodoHandlers) HandleToggle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDOr(r.Context(), DefaultUserID)
	item, err := h.repo.Toggle(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.writeRepoError(w, err, MsgUpdateFailed, userID)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleDelete removes a todo
func (h *HTTPTodoHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDOr(r.Context(), DefaultUserID)
	if err := h.repo.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		h.writeRepoError(w, err, MsgDeleteFailed, userID)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: MsgDeleted})
}

// writeRepoError maps repository sentinels to client errors and everything else to 500
func (h *HTTPTodoHandlers) writeRepoError(w http.ResponseWriter, err error, fallback, userID string) {
	switch {
	case errors.Is(err, ErrInvalidID):
		h.writeError(w, http.StatusBadRequest, MsgInvalidID)
	case errors.Is(err, ErrBodyRequired):
		h.writeError(w, http.StatusBadRequest, MsgBodyRequired)
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, MsgTodoNotFound)
	default:
		h.logger.Error("Repository operation failed", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, fallback)
	}
}

// writeError writes a standardized error response
func (h *HTTPTodoHandlers) writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"message", message)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
