package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/txlens/internal/pipeline"
	"github.com/ppiankov/txlens/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Analyze many transactions from a file in parallel",
	Long: `Batch analyzes transaction ids concurrently:
- Read txids from the input file (one per line, # starts a comment)
- Duplicates are analyzed once
- Provider requests share one rate limit across all workers
- Write a JSON and a Markdown report per transaction

Example:
  txlens batch txids.txt
  txlens batch txids.txt --concurrency 4 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./txlens-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noGraphs, "no-graphs", false, "skip graph rendering")

	addLLMFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noGraphs {
		cfg.Output.Graphs = false
	}
	if err := applyLLMFlags(cfg, llmEnabled, llmProvider, llmModel); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  txlens Batch Analysis\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Provider:     %s (%.1f req/s)\n", cfg.Provider.BaseURL, cfg.RateLimiting.RequestsPerSecond)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if name := a.explainer.ProviderName(); name != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", name, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)
	processor.OnProgress(func(result *worker.AnalysisResult) {
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.TxID, result.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "✓ %s (score: %d)\n", result.TxID, result.Report.Score.Value)
	})

	fmt.Fprintf(os.Stderr, "⚙️  Processing with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	// Reports are written in input order after all workers finish
	for _, result := range results {
		if result.Error != nil {
			continue
		}
		base := filepath.Join(outputDir, result.Report.TxID)
		if err := pipeline.RenderJSON(result.Report, base+".json"); err != nil {
			result.Error = err
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.TxID, err)
			continue
		}
		if err := pipeline.RenderMarkdown(result.Report, base+".md"); err != nil {
			result.Error = err
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", result.TxID, err)
		}
	}

	succeeded, failed := worker.Summarize(results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d transactions\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failed)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
