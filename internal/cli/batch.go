package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ppiankov/hllm/internal/metrics"
	"github.com/ppiankov/hllm/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	batchOpts        requestFlags
	concurrency      int
	batchOutput      string
	batchTimeout     time.Duration
	batchMetricsAddr string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run many queries from a file in parallel",
	Long: `Batch runs every query in a file through the full pipeline:
- Read queries from a text file (one per line, # comments) or a YAML list
- Run queries concurrently, sharing per-provider rate limits
- Write one JSON result per line (JSONL)
- Print a per-query H-Score summary to stderr

Example:
  hllm batch questions.txt
  hllm batch questions.yaml --concurrency 4 --output results.jsonl
  hllm batch questions.txt --metrics-addr :9464`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchOpts.register(batchCmd)
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of queries run at once")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "JSONL output path (default: stdout)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while the batch runs")
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	file := args[0]

	parent, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(parent, batchTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	addr := batchMetricsAddr
	if addr == "" && a.cfg.Metrics.Enabled {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		srv, err := serveMetrics(addr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(os.Stderr, "  Metrics:      http://%s/metrics\n", addr)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  H-LLM Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Models:       %d\n", len(a.coordinator.Adapters()))
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	var out io.Writer = cmd.OutOrStdout()
	if batchOutput != "" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	processor := worker.NewBatchProcessor(a.coordinator, concurrency)

	outcomes, err := processor.ProcessFile(ctx, file, batchOpts.request(""))
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	enc := json.NewEncoder(out)
	successCount := 0
	failureCount := 0
	var scoreSum float64

	for _, o := range outcomes {
		if o.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.Query, o.Error)
			continue
		}

		successCount++
		scoreSum += o.Result.HScore.Final
		if err := enc.Encode(o.Result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ %s (H-Score: %.1f/10, %d/%d models)\n",
			o.Query, o.Result.HScore.Final, o.Result.Stats.Succeeded, o.Result.Stats.Total)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d queries\n", len(outcomes))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	if successCount > 0 {
		fmt.Fprintf(os.Stderr, "  Mean H:    %.1f/10\n", scoreSum/float64(successCount))
	}
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// serveMetrics exposes the default prometheus registry on addr
func serveMetrics(addr string) (*http.Server, error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return srv, nil
}
