// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/leseb/websearch-gw/pkg/core/api"
	"github.com/leseb/websearch-gw/pkg/core/engine"
	"github.com/leseb/websearch-gw/pkg/core/prompt"
	"github.com/leseb/websearch-gw/pkg/core/upstream"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// writeResult translates the outcome of an orchestration. A successful
// completion is echoed exactly as the upstream returned it.
func (h *Handler) writeResult(w http.ResponseWriter, requestID string, resp *api.ChatCompletionResponse, err error) {
	if err != nil {
		status, body := translateError(err)
		h.logger.Error("Chat completion failed",
			"request_id", requestID,
			"status", status,
			"error", err)
		h.writeJSON(w, status, errorResponse{Error: body})
		return
	}

	payload, err := resp.Payload()
	if err != nil {
		h.logger.Error("Failed to encode completion", "request_id", requestID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to encode completion")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)

	h.logger.Info("Chat completion sent",
		"request_id", requestID,
		"completion_id", resp.ID,
		"model", resp.Model)
}

func translateError(err error) (int, errorBody) {
	var upErr *upstream.Error
	switch {
	case errors.Is(err, prompt.ErrEmptyConversation):
		return http.StatusBadRequest, errorBody{Type: "invalid_request", Message: "messages must contain at least one message"}
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest, errorBody{Type: "invalid_request", Message: err.Error()}
	case errors.As(err, &upErr):
		msg := fmt.Sprintf("%s provider unavailable: %s", upErr.Provider, upErr.Reason)
		if upErr.StatusCode != 0 {
			msg += fmt.Sprintf(" (status %d)", upErr.StatusCode)
		}
		return http.StatusServiceUnavailable, errorBody{
			Type:     "upstream_unavailable",
			Message:  msg,
			Provider: upErr.Provider,
			Reason:   string(upErr.Reason),
		}
	default:
		return http.StatusInternalServerError, errorBody{Type: "internal_error", Message: "Internal server error"}
	}
}
