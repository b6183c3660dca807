package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/pipeline"
	"github.com/spf13/cobra"
)

// requestFlags are the QueryRequest options shared by query and batch
type requestFlags struct {
	noRed    bool
	noBlue   bool
	noPurple bool
	verify   bool
	metadata bool
	noCache  bool
	timeout  time.Duration
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noRed, "no-red", false, "omit the red team verdict")
	cmd.Flags().BoolVar(&f.noBlue, "no-blue", false, "omit the blue team verdict")
	cmd.Flags().BoolVar(&f.noPurple, "no-purple", false, "omit the purple team verdict")
	cmd.Flags().BoolVar(&f.verify, "verify", false, "run truth verification (claims, sources, recency)")
	cmd.Flags().BoolVar(&f.metadata, "metadata", false, "include per-response metadata and scoring signals")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "bypass the result cache")
	cmd.Flags().DurationVar(&f.timeout, "adapter-timeout", 0, "per-model timeout override (0 = configured)")
}

func (f *requestFlags) request(query string) model.QueryRequest {
	return model.QueryRequest{
		Query:                   query,
		EnableRedTeam:           !f.noRed,
		EnableBlueTeam:          !f.noBlue,
		EnablePurpleTeam:        !f.noPurple,
		EnableTruthVerification: f.verify,
		ShowMetadata:            f.metadata,
		NoCache:                 f.noCache,
		Timeout:                 f.timeout,
	}
}

var (
	queryOpts         requestFlags
	queryFormat       string
	queryOutput       string
	queryConversation string
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask every configured model and score the answers",
	Long: `Query sends one question to every enabled model concurrently, then:
- Scores cross-model agreement as an H-Score (safety, trust, confidence, quality)
- Writes red, blue and purple team verdicts from the same signals
- Optionally verifies claims and cited sources (--verify)

Models that fail or time out keep their slot and lower the score; they
never fail the command.

Example:
  hllm query "What is the capital of France?"
  hllm query "When was the Eiffel Tower completed?" --verify --format markdown
  hllm query "And its height?" --conversation 7f1c...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryOpts.register(queryCmd)
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "auto", "output format: auto, json, markdown, text")
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", "", "write the result to a file instead of stdout")
	queryCmd.Flags().StringVar(&queryConversation, "conversation", "", `continue a conversation by ID, or "new" to start one`)
}

func runQuery(cmd *cobra.Command, args []string) (err error) {
	format, err := pipeline.ParseFormat(queryFormat)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
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

	req := queryOpts.request(strings.Join(args, " "))

	switch queryConversation {
	case "":
	case "new":
		id, err := a.conversations.Create(map[string]any{"source": "cli"})
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		req.ConversationID = id
		fmt.Fprintf(os.Stderr, "Conversation: %s\n", id)
	default:
		req.ConversationID = queryConversation
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Querying %d models...\n", len(a.coordinator.Adapters()))
	}

	result, err := a.coordinator.Query(ctx, req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if queryOutput != "" {
		f, err := os.Create(queryOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
		if format == "" {
			format = pipeline.FormatJSON
		}
	}
	if format == "" {
		format = pipeline.DefaultFormat(os.Stdout.Fd())
	}

	if err := pipeline.Render(w, result, format); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if queryOutput != "" {
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", queryOutput)
	}
	return nil
}

// signalContext returns a context cancelled on the first interrupt
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
