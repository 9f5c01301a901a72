// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/leseb/websearch-gw/pkg/core/api"
	"github.com/leseb/websearch-gw/pkg/core/engine"
	"github.com/leseb/websearch-gw/pkg/observability/logging"
	"github.com/leseb/websearch-gw/pkg/runstore"
)

const maxRequestBody = 10 << 20

// Orchestrator produces the final completion for a chat request.
// Implemented by engine.Engine.
type Orchestrator interface {
	Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)
}

// Handler implements the HTTP adapter
type Handler struct {
	orchestrator Orchestrator
	runs         runstore.Store // nil disables the runs API
	apiKey       string         // empty disables authorization
	logger       *logging.Logger
	mux          *http.ServeMux
}

// New creates a new HTTP handler
func New(orch Orchestrator, runs runstore.Store, apiKey string, logger *logging.Logger) *Handler {
	h := &Handler{
		orchestrator: orch,
		runs:         runs,
		apiKey:       apiKey,
		logger:       logger,
		mux:          http.NewServeMux(),
	}

	// Register routes
	h.mux.HandleFunc("GET /health", h.handleHealth)

	// Chat Completions API (search-augmented)
	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)

	// Run traces
	h.mux.HandleFunc("GET /v1/runs", h.handleListRuns)
	h.mux.HandleFunc("GET /v1/runs/{id}", h.handleGetRun)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	if r.URL.Path != "/health" && !h.authorized(r) {
		h.writeError(w, http.StatusUnauthorized, "invalid_api_key", "Missing or invalid bearer token")
		return
	}

	h.mux.ServeHTTP(w, r)
}

// authorized checks the bearer token in constant time.
func (h *Handler) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.apiKey)) == 1
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleChatCompletions handles POST /v1/chat/completions
func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.logger.Error("Failed to parse chat completion request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	h.logger.Info("Processing chat completion request",
		"request_id", requestID,
		"model", req.Model,
		"messages", len(req.Messages))

	resp, err := h.orchestrator.Complete(engine.WithRequestID(r.Context(), requestID), &req)
	h.writeResult(w, requestID, resp, err)
}

// handleListRuns handles GET /v1/runs
func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Run recording is disabled")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*runstore.Run{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   runs,
	})
}

// handleGetRun handles GET /v1/runs/{id}
func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Run recording is disabled")
		return
	}

	runID := r.PathValue("id")
	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, runstore.ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "run_not_found", "Run "+runID+" not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get run", "error", err, "run_id", runID)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get run")
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	h.writeJSON(w, status, errorResponse{Error: errorBody{Type: errType, Message: message}})
}
