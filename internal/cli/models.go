package cli

import (
	"context"
	"fmt"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ppiankov/hllm/internal/llm"
	"github.com/spf13/cobra"
)

var checkModels bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured model providers in slot order",
	Long: `List every configured provider in the order its responses appear in results.
With --check, each enabled provider is probed concurrently.`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&checkModels, "check", false, "probe each enabled provider")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	status := make([]string, len(cfg.Providers))
	if checkModels {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Orchestrator.AdapterTimeout)
		defer cancel()

		var wg sync.WaitGroup
		for i, p := range cfg.Providers {
			if !p.Enabled {
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				config := llm.ConfigFromModel(p, cfg.Generation, cfg.Network)
				config.Logger = logger
				adapter, err := llm.NewAdapter(config)
				if err != nil {
					status[i] = "error"
					return
				}
				start := time.Now()
				if adapter.IsAvailable(ctx) {
					status[i] = fmt.Sprintf("ok (%dms)", time.Since(start).Milliseconds())
				} else {
					status[i] = "unavailable"
				}
			}(i)
		}
		wg.Wait()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	header := "SLOT\tNAME\tPROVIDER\tMODEL\tENABLED\tAPI KEY"
	if checkModels {
		header += "\tSTATUS"
	}
	fmt.Fprintln(w, header)

	for i, p := range cfg.Providers {
		key := "missing"
		if p.ResolveAPIKey() != "" {
			key = "set"
		}
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%t\t%s", i, p.Name, p.Provider, p.Model, p.Enabled, key)
		if checkModels {
			s := status[i]
			if s == "" {
				s = "-"
			}
			line += "\t" + s
		}
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}
