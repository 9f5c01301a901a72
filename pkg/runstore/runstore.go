// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package runstore records a trace of each orchestration for inspection.
// The engine only writes runs; nothing in the request path reads them back.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/leseb/websearch-gw/pkg/provider"
)

// ErrRunNotFound is returned when a run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Providers is the registry of run store backend implementations.
// Import implementation packages with blank imports to register them:
//
//	import _ "github.com/leseb/websearch-gw/pkg/runstore/memory"
//	import _ "github.com/leseb/websearch-gw/pkg/runstore/sqlstore"
var Providers = provider.NewRegistry[Store]("run_store")

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is the trace of one orchestration.
type Run struct {
	ID              string    `json:"id"`
	Model           string    `json:"model"`
	QueryModel      string    `json:"query_model"`
	SecondRound     bool      `json:"second_round"`
	SearchProvider  string    `json:"search_provider"`
	States          []string  `json:"states"`
	Queries         []string  `json:"queries"`
	CompletionCalls int       `json:"completion_calls"`
	SearchCalls     int       `json:"search_calls"`
	Status          string    `json:"status"`
	ErrorProvider   string    `json:"error_provider,omitempty"`
	ErrorReason     string    `json:"error_reason,omitempty"`
	Error           string    `json:"error,omitempty"`
	CompletionID    string    `json:"completion_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	c := *r
	c.States = append([]string(nil), r.States...)
	c.Queries = append([]string(nil), r.Queries...)
	return &c
}

// Store defines the interface for pluggable run storage backends.
type Store interface {
	// SaveRun inserts or replaces the run with the same ID.
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Close() error
}
