// Package pipeline is the query coordinator: it dispatches a query, runs
// scoring, team analysis and verification over the collected ResponseSet,
// and assembles the QueryResult.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/hllm/internal/cache"
	"github.com/ppiankov/hllm/internal/conversation"
	"github.com/ppiankov/hllm/internal/llm"
	"github.com/ppiankov/hllm/internal/metrics"
	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/orchestrator"
	"github.com/ppiankov/hllm/internal/score"
	"github.com/ppiankov/hllm/internal/team"
	"github.com/ppiankov/hllm/internal/tracing"
	"github.com/ppiankov/hllm/internal/verify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrEmptyQuery is returned for a request without query text
var ErrEmptyQuery = errors.New("empty query")

// Deps are the collaborators of a Coordinator. Cache, Conversations and
// Verifier are optional.
type Deps struct {
	Orchestrator  *orchestrator.Orchestrator
	Adapters      []llm.Adapter
	Scorer        *score.Engine
	Team          *team.Engine
	Verifier      *verify.Verifier
	Cache         cache.Cache
	CacheTTL      time.Duration
	Conversations *conversation.Store
	MaxContext    int
	Logger        *slog.Logger
}

// Coordinator runs queries end to end
type Coordinator struct {
	orchestrator  *orchestrator.Orchestrator
	adapters      []llm.Adapter
	scorer        *score.Engine
	team          *team.Engine
	verifier      *verify.Verifier
	cache         cache.Cache
	cacheTTL      time.Duration
	conversations *conversation.Store
	maxContext    int
	logger        *slog.Logger
	tracer        trace.Tracer
	group         singleflight.Group
	now           func() time.Time
}

// New creates a coordinator. Missing engines get defaults built from
// model.DefaultConfig().
func New(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	orch := deps.Orchestrator
	if orch == nil {
		orch = orchestrator.New(orchestrator.Options{}, logger)
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = score.NewFromConfig(model.DefaultConfig())
	}
	teams := deps.Team
	if teams == nil {
		teams = team.New(scorer, nil, logger)
	}
	return &Coordinator{
		orchestrator:  orch,
		adapters:      deps.Adapters,
		scorer:        scorer,
		team:          teams,
		verifier:      deps.Verifier,
		cache:         deps.Cache,
		cacheTTL:      deps.CacheTTL,
		conversations: deps.Conversations,
		maxContext:    deps.MaxContext,
		logger:        logger,
		tracer:        tracing.Tracer(),
		now:           time.Now,
	}
}

// Adapters returns the configured adapters in slot order
func (c *Coordinator) Adapters() []llm.Adapter {
	return c.adapters
}

// Query runs one query. Adapter failures are reflected in the result, not the
// error. The error is non-nil for precondition faults (*model.AggregationError),
// unknown conversations, and caller cancellation, in which case any partial
// result is discarded.
func (c *Coordinator) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResult, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.query", trace.WithAttributes(
		attribute.Int("adapters", len(c.adapters)),
		attribute.Bool("verify", req.EnableTruthVerification),
	))
	defer span.End()

	result, err := c.query(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveQuery(metrics.OutcomeError, 0)
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("h_score", result.HScore.Final),
		attribute.Int("succeeded", result.Stats.Succeeded),
		attribute.Bool("cached", result.Cached),
	)
	metrics.ObserveQuery(metrics.OutcomeSuccess, result.HScore.Final)
	return result, nil
}

func (c *Coordinator) query(ctx context.Context, req model.QueryRequest) (*model.QueryResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, &model.AggregationError{Reason: "precondition", Err: ErrEmptyQuery}
	}
	if len(c.adapters) == 0 {
		return nil, &model.AggregationError{Reason: "precondition", Err: model.ErrNoAdapters}
	}

	prompt := req.Query
	if req.ConversationID != "" {
		if c.conversations == nil {
			return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, conversation.ErrNotFound)
		}
		history, err := c.conversations.Context(req.ConversationID, c.maxContext)
		if err != nil {
			return nil, err
		}
		if history != "" {
			prompt = history + "\n" + req.Query
		}

		// Conversation turns depend on history; they are never cached or shared
		result, best, err := c.run(ctx, req, prompt)
		if err != nil {
			return nil, err
		}
		c.record(req, result, best)
		return result, nil
	}

	if c.cache == nil || req.NoCache {
		result, _, err := c.run(ctx, req, prompt)
		return result, err
	}

	key := c.cacheKey(req, prompt)
	cached, ok := c.lookup(key)
	metrics.ObserveCache(ok)
	if ok {
		return cached, nil
	}

	// The shared run outlives any single caller; each caller stops waiting on
	// its own cancellation below, and the overall deadline bounds the run.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Double-check cache inside singleflight
		if cached, ok := c.lookup(key); ok {
			return cached, nil
		}
		result, _, err := c.run(shared, req, prompt)
		if err != nil {
			return nil, err
		}
		c.store(key, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("query cancelled: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result, ok := res.Val.(*model.QueryResult)
		if !ok {
			return nil, fmt.Errorf("unexpected type from singleflight: got %T", res.Val)
		}
		if res.Shared {
			copied := *result
			return &copied, nil
		}
		return result, nil
	}
}

// run dispatches prompt and builds the result. It also returns the text of the
// best-supported response for conversation history.
func (c *Coordinator) run(ctx context.Context, req model.QueryRequest, prompt string) (*model.QueryResult, string, error) {
	start := c.now()

	dispatchReq := req
	dispatchReq.Query = prompt
	rs, err := c.orchestrator.Dispatch(ctx, dispatchReq, c.adapters)
	if err != nil {
		return nil, "", err
	}
	// Scoring excludes query terms; history must not count as the query
	rs.Query = req.Query

	evaluate := sync.OnceValue(func() score.Evaluation {
		return c.scorer.Evaluate(rs)
	})

	var (
		analysis     model.TeamAnalysis
		verification *model.Verification
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evaluate()
		return nil
	})
	g.Go(func() error {
		analysis = c.team.AnalyzeEvaluation(gctx, rs, evaluate(), req.Teams())
		return nil
	})
	if req.EnableTruthVerification && c.verifier != nil {
		g.Go(func() error {
			v := c.verifier.Verify(gctx, rs, evaluate())
			verification = &v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("query cancelled: %w", err)
	}

	eval := evaluate()
	result := &model.QueryResult{
		ID:             uuid.NewString(),
		Query:          req.Query,
		ConversationID: req.ConversationID,
		CreatedAt:      c.now().UTC(),
		Responses:      rs.Views(req.ShowMetadata),
		HScore:         eval.Score,
		HScoreDisplay:  eval.Score.Display(),
		TeamAnalysis:   analysis,
		Verification:   verification,
		Stats: model.Stats{
			Total:     rs.Len(),
			Succeeded: len(eval.Succeeded),
			Failed:    rs.Len() - len(eval.Succeeded),
			ElapsedMS: c.now().Sub(start).Milliseconds(),
		},
	}
	if req.ShowMetadata {
		result.Signals = eval.Signals
	}

	c.logger.Info("query complete",
		"id", result.ID,
		"h_score", result.HScore.Final,
		"succeeded", result.Stats.Succeeded,
		"total", result.Stats.Total,
		"elapsed_ms", result.Stats.ElapsedMS,
	)
	return result, bestResponse(rs, eval), nil
}

// record appends the turn to the conversation. Failures are logged, not returned.
func (c *Coordinator) record(req model.QueryRequest, result *model.QueryResult, best string) {
	id := req.ConversationID
	if err := c.conversations.Append(id, conversation.RoleUser, req.Query, nil); err != nil {
		c.logger.Warn("append user message failed", "conversation", id, "error", err)
		return
	}

	meta := map[string]any{
		"result_id": result.ID,
		"h_score":   result.HScore.Final,
	}
	if err := c.conversations.Append(id, conversation.RoleAssistant, synthesize(result, best), meta); err != nil {
		c.logger.Warn("append assistant message failed", "conversation", id, "error", err)
	}
}

// synthesize builds the assistant turn stored in conversation history
func synthesize(result *model.QueryResult, best string) string {
	var parts []string
	if best != "" {
		parts = append(parts, best)
	}
	if v := result.TeamAnalysis.PurpleTeam; v != nil {
		parts = append(parts, v.Narrative)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("No model produced an answer (H-Score %.1f/10).", result.HScore.Final)
	}
	return strings.Join(parts, "\n\n")
}

// bestResponse returns the text of the most corroborated successful slot
func bestResponse(rs model.ResponseSet, eval score.Evaluation) string {
	best := -1
	for _, i := range eval.Succeeded {
		if best < 0 || (i < len(eval.Support) && eval.Support[i] > eval.Support[best]) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return rs.Slots[best].Text()
}

func (c *Coordinator) cacheKey(req model.QueryRequest, prompt string) string {
	var models []string
	for _, a := range c.adapters {
		models = append(models, a.Identity().String())
	}
	flags := fmt.Sprintf("red=%t blue=%t purple=%t verify=%t meta=%t timeout=%s",
		req.EnableRedTeam, req.EnableBlueTeam, req.EnablePurpleTeam,
		req.EnableTruthVerification, req.ShowMetadata, req.Timeout)
	return cache.Key("result", prompt, strings.Join(models, ","), flags)
}

func (c *Coordinator) lookup(key string) (*model.QueryResult, bool) {
	data, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "error", err)
		_ = c.cache.Delete(key)
		return nil, false
	}

	result.Cached = true
	return &result, true
}

func (c *Coordinator) store(key string, result *model.QueryResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("encode result for cache failed", "error", err)
		return
	}
	if err := c.cache.Set(key, data, c.cacheTTL); err != nil {
		c.logger.Warn("cache store failed", "error", err)
	}
}
