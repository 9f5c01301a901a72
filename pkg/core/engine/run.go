// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/leseb/websearch-gw/pkg/core/api"
	"github.com/leseb/websearch-gw/pkg/core/upstream"
	"github.com/leseb/websearch-gw/pkg/runstore"
)

// recorder accumulates the trace of one orchestration.
type recorder struct {
	run    *runstore.Run
	logger *slog.Logger
}

func (e *Engine) newRecorder(id, model string, policy Policy) *recorder {
	return &recorder{
		run: &runstore.Run{
			ID:             id,
			Model:          model,
			QueryModel:     policy.QueryModel,
			SecondRound:    policy.RunSecondSearchRound,
			SearchProvider: e.search.Name(),
			CreatedAt:      e.now().UTC(),
		},
		logger: e.logger.With("request_id", id),
	}
}

func (r *recorder) enter(state State) {
	r.run.States = append(r.run.States, string(state))
	r.logger.Debug("Orchestration state", "state", state)
}

func (r *recorder) fail(err error) {
	prev := ""
	if n := len(r.run.States); n > 0 {
		prev = r.run.States[n-1]
	}
	r.enter(StateError)
	r.run.Error = err.Error()

	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		r.run.ErrorProvider = upErr.Provider
		r.run.ErrorReason = string(upErr.Reason)
		r.logger.Error("Upstream unavailable",
			"state", prev,
			"provider", upErr.Provider,
			"backend", upErr.Backend,
			"reason", upErr.Reason,
			"status_code", upErr.StatusCode,
			"error", upErr.Err)
		return
	}
	r.logger.Error("Orchestration failed", "state", prev, "error", err)
}

// saveRun persists the trace. Store failures never reach the caller.
func (e *Engine) saveRun(ctx context.Context, rec *recorder, resp *api.ChatCompletionResponse, err error) {
	rec.run.CompletedAt = e.now().UTC()
	if err != nil {
		rec.run.Status = runstore.StatusFailed
	} else {
		rec.run.Status = runstore.StatusCompleted
		if resp != nil {
			rec.run.CompletionID = resp.ID
		}
	}

	rec.logger.Info("Orchestration finished",
		"model", rec.run.Model,
		"status", rec.run.Status,
		"completion_calls", rec.run.CompletionCalls,
		"search_calls", rec.run.SearchCalls,
		"duration", rec.run.CompletedAt.Sub(rec.run.CreatedAt).Round(time.Millisecond))

	if e.runs == nil {
		return
	}
	// The request context may already be canceled by the time we get here.
	if saveErr := e.runs.SaveRun(context.WithoutCancel(ctx), rec.run); saveErr != nil {
		rec.logger.Warn("Failed to save run", "error", saveErr)
	}
}
