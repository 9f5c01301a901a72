// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package runstoretest provides a shared conformance test suite for
// runstore.Store implementations. Each backend should call
// RunConformanceTests from its own _test.go file.
package runstoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leseb/websearch-gw/pkg/runstore"
)

func sampleRun(id string, created time.Time) *runstore.Run {
	return &runstore.Run{
		ID:              id,
		Model:           "gpt-4o",
		QueryModel:      "gpt-4o-mini",
		SecondRound:     true,
		SearchProvider:  "serper",
		States:          []string{"init", "first_query", "first_search", "final_answer", "done"},
		Queries:         []string{"weather paris"},
		CompletionCalls: 2,
		SearchCalls:     1,
		Status:          runstore.StatusCompleted,
		CompletionID:    "chatcmpl-1",
		CreatedAt:       created,
		CompletedAt:     created.Add(time.Second),
	}
}

// RunConformanceTests exercises a Store implementation against the shared
// contract. The newStore function is called once per sub-test to provide an
// isolated store instance.
func RunConformanceTests(t *testing.T, newStore func(t *testing.T) runstore.Store) {
	t.Helper()

	t.Run("SaveAndGet", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		run := sampleRun("run_1", time.Now().UTC().Truncate(time.Millisecond))
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}

		got, err := store.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.ID != run.ID || got.Model != run.Model || got.QueryModel != run.QueryModel ||
			got.SecondRound != run.SecondRound || got.Status != run.Status ||
			got.CompletionCalls != run.CompletionCalls || got.SearchCalls != run.SearchCalls {
			t.Errorf("GetRun returned unexpected run: %+v", got)
		}
		if len(got.States) != len(run.States) || len(got.Queries) != 1 || got.Queries[0] != "weather paris" {
			t.Errorf("GetRun lost trace details: %+v", got)
		}
		if !got.CreatedAt.Equal(run.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		run := sampleRun("run_2", time.Now().UTC())
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		run.Status = runstore.StatusFailed
		run.ErrorProvider = "search"
		run.ErrorReason = "status"
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun (replace): %v", err)
		}

		got, err := store.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.Status != runstore.StatusFailed || got.ErrorProvider != "search" {
			t.Errorf("expected replaced run, got %+v", got)
		}

		runs, err := store.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("expected 1 run after replace, got %d", len(runs))
		}
	})

	t.Run("StoredCopyIsIsolated", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		run := sampleRun("run_3", time.Now().UTC())
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		run.Queries[0] = "mutated"

		got, err := store.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.Queries[0] != "weather paris" {
			t.Errorf("store shares memory with caller: %q", got.Queries[0])
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		base := time.Now().UTC()
		for i, id := range []string{"run_a", "run_b", "run_c"} {
			if err := store.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatalf("SaveRun: %v", err)
			}
		}

		runs, err := store.ListRuns(ctx, 2)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "run_c" || runs[1].ID != "run_b" {
			t.Errorf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		_, err := store.GetRun(context.Background(), "run_missing")
		if !errors.Is(err, runstore.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got: %v", err)
		}
	})
}
