package worker

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

// mockQuerier implements Querier
type mockQuerier struct {
	failOn string
}

func (m *mockQuerier) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResult, error) {
	time.Sleep(10 * time.Millisecond)
	if m.failOn != "" && strings.Contains(req.Query, m.failOn) {
		return nil, errors.New("query error")
	}
	return &model.QueryResult{Query: req.Query}, nil
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "queries")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestBatchProcessor_ProcessQueries(t *testing.T) {
	processor := NewBatchProcessor(&mockQuerier{}, 2)

	queries := []string{"capital of France", "boiling point of water", "speed of light"}
	results := processor.ProcessQueries(context.Background(), queries, model.NewQueryRequest(""))

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error for %q: %v", res.Query, res.Error)
			continue
		}
		if res.Query != queries[i] || res.Result.Query != queries[i] {
			t.Errorf("expected outcome %d for %q, got %q", i, queries[i], res.Query)
		}
	}
}

func TestBatchProcessor_ProcessQueries_Error(t *testing.T) {
	processor := NewBatchProcessor(&mockQuerier{failOn: "bad"}, 2)

	results := processor.ProcessQueries(context.Background(), []string{"good", "bad"}, model.QueryRequest{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error != nil {
		t.Errorf("unexpected error: %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("expected error, got nil")
	}
	if results[1].Result != nil {
		t.Error("expected nil result on error")
	}
}

func TestBatchProcessor_ProcessQueries_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockQuerier{}, 2)

	results := processor.ProcessQueries(context.Background(), nil, model.QueryRequest{})
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_CancelledContext(t *testing.T) {
	processor := NewBatchProcessor(&mockQuerier{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := processor.ProcessQueries(ctx, []string{"a", "b", "c"}, model.QueryRequest{})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, res := range results {
		if res == nil {
			t.Fatal("expected an outcome for every query")
		}
	}
}

func TestReadQueriesFromFile(t *testing.T) {
	path := writeTemp(t, "What is the capital of France?\n# comment\n   \nWho wrote Hamlet?   \nWhat is the capital of France?\n")

	queries, err := ReadQueriesFromFile(path)
	if err != nil {
		t.Fatalf("ReadQueriesFromFile failed: %v", err)
	}

	expected := []string{"What is the capital of France?", "Who wrote Hamlet?"}
	if len(queries) != len(expected) {
		t.Fatalf("expected %d queries, got %d", len(expected), len(queries))
	}
	for i, q := range queries {
		if q != expected[i] {
			t.Errorf("expected query %q at index %d, got %q", expected[i], i, q)
		}
	}
}

func TestReadQueriesFromFile_NonExistent(t *testing.T) {
	if _, err := ReadQueriesFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeTemp(t, "q1\nq2\n# comment\n\nq3\n")

	processor := NewBatchProcessor(&mockQuerier{}, 2)

	results, err := processor.ProcessFile(context.Background(), path, model.QueryRequest{})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	processor := NewBatchProcessor(&mockQuerier{}, 2)

	if _, err := processor.ProcessFile(context.Background(), "no_such_file.txt", model.QueryRequest{}); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestReadQueriesFromFile_YAML(t *testing.T) {
	dir := t.TempDir()

	list := dir + "/list.yaml"
	if err := os.WriteFile(list, []byte("- Who wrote Hamlet?\n- \"\"\n- Who wrote Hamlet?\n- What is 2+2?\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	queries, err := ReadQueriesFromFile(list)
	if err != nil {
		t.Fatalf("ReadQueriesFromFile failed: %v", err)
	}
	if len(queries) != 2 || queries[0] != "Who wrote Hamlet?" || queries[1] != "What is 2+2?" {
		t.Errorf("unexpected queries: %v", queries)
	}

	keyed := dir + "/keyed.yml"
	if err := os.WriteFile(keyed, []byte("queries:\n  - What is the capital of France?\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	queries, err = ReadQueriesFromFile(keyed)
	if err != nil {
		t.Fatalf("ReadQueriesFromFile failed: %v", err)
	}
	if len(queries) != 1 {
		t.Errorf("expected 1 query, got %v", queries)
	}
}
