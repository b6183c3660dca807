package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/hllm/internal/model"
	"gopkg.in/yaml.v3"
)

// Querier runs one query end to end
type Querier interface {
	Query(ctx context.Context, req model.QueryRequest) (*model.QueryResult, error)
}

// QueryOutcome is the result of one batch entry
type QueryOutcome struct {
	Query  string
	Result *model.QueryResult
	Error  error
}

// BatchProcessor runs many queries concurrently
type BatchProcessor struct {
	querier     Querier
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(querier Querier, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		querier:     querier,
		concurrency: concurrency,
	}
}

// ProcessQueries runs each query with the flags of template and returns one
// outcome per query, in input order.
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string, template model.QueryRequest) []*QueryOutcome {
	if len(queries) == 0 {
		return []*QueryOutcome{}
	}

	pool := NewPool[*QueryOutcome](ctx, b.concurrency)
	pool.Start()

	for _, q := range queries {
		req := template
		req.Query = q
		pool.Submit(func(ctx context.Context) *QueryOutcome {
			result, err := b.querier.Query(ctx, req)
			return &QueryOutcome{Query: req.Query, Result: result, Error: err}
		})
	}

	outcomes := pool.Wait()

	// Jobs skipped by a cancelled context still get an outcome
	for i, o := range outcomes {
		if o == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			outcomes[i] = &QueryOutcome{Query: queries[i], Error: err}
		}
	}

	return outcomes
}

// ProcessFile reads queries from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string, template model.QueryRequest) ([]*QueryOutcome, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, queries, template), nil
}

// ReadQueriesFromFile reads queries from a file: a YAML list for .yaml/.yml
// files, otherwise one query per line. Blank entries and duplicates are dropped.
func ReadQueriesFromFile(filePath string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return readYAMLQueries(filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}

// readYAMLQueries accepts either a top-level list or a "queries:" key
func readYAMLQueries(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Queries []string `yaml:"queries"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		list = doc.Queries
	}

	var queries []string
	seen := make(map[string]bool)
	for _, q := range list {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
	}
	return queries, nil
}
