package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/hllm/internal/cache"
	"github.com/ppiankov/hllm/internal/conversation"
	"github.com/ppiankov/hllm/internal/llm"
	"github.com/ppiankov/hllm/internal/llm/llmtest"
	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/orchestrator"
	"github.com/ppiankov/hllm/internal/util"
	"github.com/ppiankov/hllm/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakes(texts ...string) []*llmtest.Fake {
	out := make([]*llmtest.Fake, len(texts))
	for i, text := range texts {
		out[i] = llmtest.New(fmt.Sprintf("M%d", i), text, 0)
	}
	return out
}

func adapters(fs []*llmtest.Fake) []llm.Adapter {
	out := make([]llm.Adapter, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

func newCoordinator(fs []*llmtest.Fake, mutate func(*Deps)) *Coordinator {
	logger := util.Discard()
	deps := Deps{
		Orchestrator: orchestrator.New(orchestrator.Options{
			AdapterTimeout:  200 * time.Millisecond,
			OverallDeadline: time.Second,
		}, logger),
		Adapters: adapters(fs),
		Logger:   logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return New(deps)
}

func paris() []*llmtest.Fake {
	return fakes(
		"Paris is the capital of France.",
		"The capital of France is Paris.",
		"Paris.",
		"Paris is the capital of France.",
		"Paris is the capital city of France.",
		"The capital of France is Paris.",
		"Paris is the capital of France.",
		"Paris",
	)
}

func TestQueryUnanimousScenario(t *testing.T) {
	c := newCoordinator(paris(), nil)

	result, err := c.Query(context.Background(), model.NewQueryRequest("What is the capital of France?"))
	require.NoError(t, err)

	assert.Len(t, result.Responses, 8)
	assert.GreaterOrEqual(t, result.HScore.Confidence, 8.0)
	assert.GreaterOrEqual(t, result.HScore.Final, 7.0)
	assert.Equal(t, result.HScore.Display(), result.HScoreDisplay)
	assert.Equal(t, model.Stats{Total: 8, Succeeded: 8, Failed: 0, ElapsedMS: result.Stats.ElapsedMS}, result.Stats)
	assert.Len(t, result.ID, 36)
	assert.Nil(t, result.Verification)
	assert.Empty(t, result.Signals)

	ta := result.TeamAnalysis
	require.NotNil(t, ta.RedTeam)
	require.NotNil(t, ta.BlueTeam)
	require.NotNil(t, ta.PurpleTeam)
	assert.Equal(t, (ta.RedTeam.Score+ta.BlueTeam.Score)/2, ta.PurpleTeam.Score)
	assert.Equal(t, result.HScore.Trust, ta.BlueTeam.Score)
}

func TestQueryContradictionWithTimeouts(t *testing.T) {
	fs := fakes(
		"The Eiffel Tower was completed in 1889 for the World's Fair.",
		"It was finished in 1901 after long delays.",
		"Construction ended in 1923 under Gustave Eiffel's nephew.",
		"Records show the tower opened in 1875.",
	)
	for i := 4; i < 8; i++ {
		fs = append(fs, llmtest.New(fmt.Sprintf("Slow%d", i), "too late", 5*time.Second))
	}
	c := newCoordinator(fs, nil)

	start := time.Now()
	result, err := c.Query(context.Background(), model.NewQueryRequest("When was the Eiffel Tower completed?"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second+500*time.Millisecond)

	assert.Len(t, result.Responses, 8)
	assert.Equal(t, 4, result.Stats.Failed)
	assert.LessOrEqual(t, result.HScore.Confidence, 4.0)
	for _, r := range result.Responses[4:] {
		assert.Contains(t, r.Response, "timeout")
	}

	ta := result.TeamAnalysis
	assert.Contains(t, ta.RedTeam.Narrative, "contradict")
	red, blue, purple := ta.RedTeam.Score, ta.BlueTeam.Score, ta.PurpleTeam.Score
	assert.Greater(t, purple, min(red, blue))
	assert.Less(t, purple, max(red, blue))
}

func TestQueryAllFailuresStillReturnsResult(t *testing.T) {
	fs := []*llmtest.Fake{
		llmtest.Failing("A", model.KindAuthFailure),
		llmtest.Failing("B", model.KindRateLimited),
		llmtest.Failing("C", model.KindUnavailable),
	}
	c := newCoordinator(fs, nil)

	result, err := c.Query(context.Background(), model.NewQueryRequest("anything"))
	require.NoError(t, err)

	assert.Len(t, result.Responses, 3)
	assert.LessOrEqual(t, result.HScore.Confidence, 3.0)
	assert.Equal(t, 0.0, result.HScore.Final)
	assert.Equal(t, 3, result.Stats.Failed)
	assert.Contains(t, result.Responses[0].Response, "[A error: auth_failure")
	require.NotNil(t, result.TeamAnalysis.RedTeam)
	assert.Contains(t, result.TeamAnalysis.RedTeam.Narrative, "All 3 models failed")
}

func TestQueryPreconditions(t *testing.T) {
	c := newCoordinator(nil, nil)
	_, err := c.Query(context.Background(), model.NewQueryRequest("hello"))
	var aggErr *model.AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.ErrorIs(t, err, model.ErrNoAdapters)

	c = newCoordinator(paris(), nil)
	_, err = c.Query(context.Background(), model.NewQueryRequest("   "))
	require.ErrorAs(t, err, &aggErr)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestQueryFlagsShapeResult(t *testing.T) {
	c := newCoordinator(paris(), nil)

	req := model.QueryRequest{Query: "What is the capital of France?", EnableRedTeam: true, ShowMetadata: true}
	result, err := c.Query(context.Background(), req)
	require.NoError(t, err)

	assert.NotNil(t, result.TeamAnalysis.RedTeam)
	assert.Nil(t, result.TeamAnalysis.BlueTeam)
	assert.Nil(t, result.TeamAnalysis.PurpleTeam)
	assert.NotEmpty(t, result.Signals)
	require.NotNil(t, result.Responses[0].Metadata)
	assert.Equal(t, "ok", result.Responses[0].Metadata["status"])

	data, err := json.Marshal(result.TeamAnalysis)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "blue_team")
}

func TestQueryCancellationDiscardsResult(t *testing.T) {
	fs := []*llmtest.Fake{
		llmtest.New("Fast", "Paris is the capital of France.", 0),
		llmtest.New("Slow", "Paris.", 2*time.Second),
	}
	c := newCoordinator(fs, func(d *Deps) {
		d.Orchestrator = orchestrator.New(orchestrator.Options{AdapterTimeout: 5 * time.Second, OverallDeadline: 10 * time.Second}, util.Discard())
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	result, err := c.Query(ctx, model.NewQueryRequest("What is the capital of France?"))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryResultCache(t *testing.T) {
	fs := paris()
	c := newCoordinator(fs, func(d *Deps) {
		d.Cache = cache.NewMemoryCache(time.Minute, time.Minute)
	})
	req := model.NewQueryRequest("What is the capital of France?")

	first, err := c.Query(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Query(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.HScore, second.HScore)
	require.NotNil(t, second.TeamAnalysis.PurpleTeam)
	assert.Equal(t, first.TeamAnalysis.PurpleTeam.Narrative, second.TeamAnalysis.PurpleTeam.Narrative)
	assert.Equal(t, first.TeamAnalysis.PurpleTeam.Score, second.TeamAnalysis.PurpleTeam.Score)
	assert.Equal(t, 1, fs[0].Calls())

	req.NoCache = true
	third, err := c.Query(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, fs[0].Calls())
}

func TestQueryCollapsesConcurrentIdenticalQueries(t *testing.T) {
	fs := fakes("Paris is the capital of France.", "The capital of France is Paris.")
	for _, f := range fs {
		f.Delay = 50 * time.Millisecond
	}
	c := newCoordinator(fs, func(d *Deps) {
		d.Cache = cache.NewMemoryCache(time.Minute, time.Minute)
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Query(context.Background(), model.NewQueryRequest("What is the capital of France?"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fs[0].Calls())
}

func TestQuerySharedRunSurvivesFirstCallerCancel(t *testing.T) {
	fs := fakes("Paris is the capital of France.", "The capital of France is Paris.")
	for _, f := range fs {
		f.Delay = 300 * time.Millisecond
	}
	c := newCoordinator(fs, func(d *Deps) {
		d.Orchestrator = orchestrator.New(orchestrator.Options{AdapterTimeout: 2 * time.Second, OverallDeadline: 3 * time.Second}, util.Discard())
		d.Cache = cache.NewMemoryCache(time.Minute, time.Minute)
	})
	req := model.NewQueryRequest("What is the capital of France?")

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, req)
		firstErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	time.AfterFunc(30*time.Millisecond, cancel)

	result, err := c.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.Succeeded)

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.Equal(t, 1, fs[0].Calls())
}

func TestQueryConversationCarriesHistory(t *testing.T) {
	fs := paris()
	store := conversation.NewStore(cache.NewMemoryCache(time.Hour, time.Minute), time.Hour)
	c := newCoordinator(fs, func(d *Deps) {
		d.Conversations = store
		d.MaxContext = 10
		d.Cache = cache.NewMemoryCache(time.Minute, time.Minute)
	})

	id, err := store.Create(nil)
	require.NoError(t, err)

	req := model.NewQueryRequest("What is the capital of France?")
	req.ConversationID = id
	first, err := c.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, id, first.ConversationID)
	assert.Equal(t, "What is the capital of France?", fs[0].LastQuery())

	req.Query = "And its population?"
	_, err = c.Query(context.Background(), req)
	require.NoError(t, err)

	sent := fs[0].LastQuery()
	assert.True(t, strings.HasPrefix(sent, "CONVERSATION HISTORY:"))
	assert.Contains(t, sent, "User: What is the capital of France?")
	assert.True(t, strings.HasSuffix(sent, "And its population?"))

	history, err := store.History(id)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, conversation.RoleAssistant, history[1].Role)
	assert.Contains(t, history[1].Content, "Paris")
	assert.Equal(t, first.ID, history[1].Metadata["result_id"])
}

func TestQueryUnknownConversation(t *testing.T) {
	store := conversation.NewStore(cache.NewMemoryCache(time.Hour, time.Minute), time.Hour)
	c := newCoordinator(paris(), func(d *Deps) { d.Conversations = store })

	req := model.NewQueryRequest("hello")
	req.ConversationID = "missing"
	_, err := c.Query(context.Background(), req)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestQueryTruthVerification(t *testing.T) {
	fs := fakes(
		"According to the 2024 census, Paris has about 2.1 million residents. See https://www.insee.fr/en/statistiques.",
		"Paris has roughly 2.1 million residents according to the 2024 census.",
	)
	c := newCoordinator(fs, func(d *Deps) {
		d.Verifier = verify.New(nil, util.Discard())
	})

	req := model.NewQueryRequest("What is the population of Paris?")
	req.EnableTruthVerification = true
	result, err := c.Query(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, result.Verification)
	v := result.Verification
	assert.NotEmpty(t, v.Claims)
	require.Len(t, v.Sources, 1)
	assert.Equal(t, "M0", v.Sources[0].Model)
	assert.GreaterOrEqual(t, v.TruthScore, 0.0)
	assert.LessOrEqual(t, v.TruthScore, 1.0)
	assert.NotEmpty(t, v.Level)

	// Verification never changes the score
	plain, err := c.Query(context.Background(), model.NewQueryRequest("What is the population of Paris?"))
	require.NoError(t, err)
	assert.Equal(t, plain.HScore, result.HScore)
}

func TestQuerySameInputSameScore(t *testing.T) {
	c := newCoordinator(paris(), nil)
	req := model.NewQueryRequest("What is the capital of France?")

	a, err := c.Query(context.Background(), req)
	require.NoError(t, err)
	b, err := c.Query(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.HScore, b.HScore)
	assert.Equal(t, a.TeamAnalysis, b.TeamAnalysis)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSynthesize(t *testing.T) {
	empty := &model.QueryResult{}
	assert.Contains(t, synthesize(empty, ""), "No model produced an answer")

	withPurple := &model.QueryResult{TeamAnalysis: model.TeamAnalysis{PurpleTeam: &model.Verdict{Narrative: "Overall fine."}}}
	assert.Equal(t, "Paris.\n\nOverall fine.", synthesize(withPurple, "Paris."))
}

func TestRenderFormats(t *testing.T) {
	c := newCoordinator(paris(), nil)
	result, err := c.Query(context.Background(), model.NewQueryRequest("What is the capital of France?"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, result, FormatJSON))
	var decoded model.QueryResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, result.HScore, decoded.HScore)
	assert.Contains(t, buf.String(), `"red_team"`)

	buf.Reset()
	require.NoError(t, Render(&buf, result, FormatMarkdown))
	assert.Contains(t, buf.String(), "# H-LLM Result")
	assert.Contains(t, buf.String(), "### Purple Team")
	assert.Contains(t, buf.String(), "### M7")

	buf.Reset()
	require.NoError(t, Render(&buf, result, FormatText))
	assert.Contains(t, buf.String(), "H-Score")
	assert.Contains(t, buf.String(), "Red Team")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":         "",
		"auto":     "",
		"json":     FormatJSON,
		"MD":       FormatMarkdown,
		"markdown": FormatMarkdown,
		"text":     FormatText,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestDefaultFormatNonTerminal(t *testing.T) {
	// A pipe or regular file descriptor is never a terminal
	assert.Equal(t, FormatJSON, DefaultFormat(^uintptr(0)))
}
