// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine runs the search-augmented completion protocol: generate a
// search query with the model, run it, inject the results, optionally do it
// once more, then ask the model for the final answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/leseb/websearch-gw/pkg/core/api"
	"github.com/leseb/websearch-gw/pkg/core/config"
	"github.com/leseb/websearch-gw/pkg/core/prompt"
	"github.com/leseb/websearch-gw/pkg/core/upstream"
	"github.com/leseb/websearch-gw/pkg/runstore"
	"github.com/leseb/websearch-gw/pkg/websearch"
)

// ErrInvalidRequest is returned for requests the engine refuses before any
// upstream call.
var ErrInvalidRequest = errors.New("invalid request")

// State is a step of the orchestration.
type State string

const (
	StateInit         State = "init"
	StateFirstQuery   State = "first_query"
	StateFirstSearch  State = "first_search"
	StateSecondQuery  State = "second_query"
	StateSecondSearch State = "second_search"
	StateFinalAnswer  State = "final_answer"
	StateDone         State = "done"
	StateError        State = "error"
)

// Policy is the per-request branching input, derived from the requested
// model.
type Policy struct {
	RunSecondSearchRound bool
	// QueryModel replaces the caller's model for the query turns. Empty
	// keeps the caller's model.
	QueryModel string
}

// Engine orchestrates completion and search calls for one request at a
// time. It holds no per-request state and is safe for concurrent use.
type Engine struct {
	config       *config.EngineConfig
	llm          api.ChatCompletionClient
	search       websearch.Provider
	instructions config.Instructions
	runs         runstore.Store // nil disables run recording
	logger       *slog.Logger
	now          func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRunStore records a trace of every orchestration in store.
func WithRunStore(store runstore.Store) Option {
	return func(e *Engine) { e.runs = store }
}

// WithLogger sets the logger used for state transitions and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the wall clock used for the timestamp message.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. Missing collaborators or instruction text are
// reported as config.ErrConfigurationMissing so the server never starts
// half-configured.
func New(cfg *config.EngineConfig, llm api.ChatCompletionClient, search websearch.Provider, ins *config.Instructions, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: engine config", config.ErrConfigurationMissing)
	}
	if llm == nil {
		return nil, fmt.Errorf("%w: completion client", config.ErrConfigurationMissing)
	}
	if search == nil {
		return nil, fmt.Errorf("%w: search provider", config.ErrConfigurationMissing)
	}
	if ins == nil {
		return nil, fmt.Errorf("%w: instructions", config.ErrConfigurationMissing)
	}
	if err := ins.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:       cfg,
		llm:          llm,
		search:       search,
		instructions: *ins,
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PolicyFor derives the orchestration policy for model.
func (e *Engine) PolicyFor(model string) Policy {
	return Policy{
		RunSecondSearchRound: slices.Contains(e.config.HighAccuracyModels, model),
		QueryModel:           e.config.QueryModel,
	}
}

type requestIDKey struct{}

// WithRequestID attaches an ID that the engine uses as the run ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Validate rejects requests the engine cannot serve. An empty conversation
// yields prompt.ErrEmptyConversation; everything else ErrInvalidRequest.
func Validate(req *api.ChatCompletionRequest) error {
	if req == nil {
		return fmt.Errorf("%w: missing request body", ErrInvalidRequest)
	}
	if len(req.Messages) == 0 {
		return prompt.ErrEmptyConversation
	}
	if req.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if req.Stream {
		return fmt.Errorf("%w: streaming is not supported", ErrInvalidRequest)
	}
	for i, msg := range req.Messages {
		if !api.ValidRole(msg.Role) {
			return fmt.Errorf("%w: messages[%d]: unsupported role %q", ErrInvalidRequest, i, msg.Role)
		}
	}
	return nil
}

// Complete runs the full orchestration for req and returns the final
// completion. Upstream failures are returned as *upstream.Error; the first
// failure aborts the run.
func (e *Engine) Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	policy := e.PolicyFor(req.Model)
	rec := e.newRecorder(requestID(ctx), req.Model, policy)

	resp, err := e.orchestrate(ctx, rec, req, policy)
	if err != nil {
		rec.fail(err)
	} else {
		rec.enter(StateDone)
	}
	e.saveRun(ctx, rec, resp, err)
	return resp, err
}

func (e *Engine) orchestrate(ctx context.Context, rec *recorder, req *api.ChatCompletionRequest, policy Policy) (*api.ChatCompletionResponse, error) {
	rec.enter(StateInit)
	conv := prompt.New(req.Messages)
	original, err := prompt.LastMessage(conv)
	if err != nil {
		return nil, err
	}

	// Reading order: examples, first instruction, timestamp.
	conv = prompt.PrependSystem(conv, prompt.TimestampText(e.now()))
	conv = prompt.PrependSystem(conv, e.instructions.FirstInstruction)
	conv = prompt.PrependSystem(conv, e.instructions.Examples)

	queryModel := req.Model
	if policy.QueryModel != "" {
		queryModel = policy.QueryModel
	}

	conv, err = e.searchRound(ctx, rec, conv, queryModel, StateFirstQuery, StateFirstSearch)
	if err != nil {
		return nil, err
	}

	if policy.RunSecondSearchRound {
		conv = prompt.AppendSystem(conv, e.instructions.SecondInstruction)
		conv, err = e.searchRound(ctx, rec, conv, queryModel, StateSecondQuery, StateSecondSearch)
		if err != nil {
			return nil, err
		}
	}

	rec.enter(StateFinalAnswer)
	conv = prompt.AppendSystem(conv, e.instructions.FinalInstruction)
	conv = prompt.Append(conv, original)

	return e.complete(ctx, rec, &api.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            conv.Messages(),
		Temperature:         req.Temperature,
		TopP:                req.TopP,
		MaxTokens:           req.MaxTokens,
		MaxCompletionTokens: req.MaxCompletionTokens,
	})
}

// searchRound asks model for a query, runs it and injects the results.
func (e *Engine) searchRound(ctx context.Context, rec *recorder, conv prompt.Conversation, model string, queryState, searchState State) (prompt.Conversation, error) {
	rec.enter(queryState)
	resp, err := e.complete(ctx, rec, &api.ChatCompletionRequest{
		Model:    model,
		Messages: conv.Messages(),
	})
	if err != nil {
		return conv, err
	}
	msg, ok := resp.TopMessage()
	if !ok {
		return conv, upstream.Decode(upstream.ProviderCompletion, "", errors.New("response has no choices"))
	}

	query := msg.Content
	conv = prompt.AppendSystem(conv, query)

	rec.enter(searchState)
	results, err := e.runSearch(ctx, rec, query)
	if err != nil {
		return conv, err
	}
	return prompt.AppendSystem(conv, results.Render()), nil
}

func (e *Engine) complete(ctx context.Context, rec *recorder, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	rec.run.CompletionCalls++
	resp, err := e.llm.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, asUpstream(upstream.ProviderCompletion, err)
	}
	return resp, nil
}

func (e *Engine) runSearch(ctx context.Context, rec *recorder, query string) (*websearch.Results, error) {
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	rec.run.SearchCalls++
	rec.run.Queries = append(rec.run.Queries, query)
	results, err := e.search.Search(ctx, query)
	if err != nil {
		return nil, asUpstream(upstream.ProviderSearch, err)
	}
	return results, nil
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeout > 0 {
		return context.WithTimeout(ctx, e.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// asUpstream keeps typed upstream errors and treats anything else as a
// failure to get a response.
func asUpstream(provider string, err error) *upstream.Error {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		return upErr
	}
	return upstream.Transport(provider, "", err)
}
