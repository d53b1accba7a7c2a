package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	outJSON     string
	outMD       string
	timeout     time.Duration
	noGraphs    bool
	llmEnabled  bool
	llmProvider string
	llmModel    string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <txid>",
	Short: "Score the privacy of a single transaction",
	Long: `Analyze fetches one transaction and:
- Extracts its input and output addresses in provider order
- Applies the fixed privacy heuristics and sums their adjustments
- Maps the score to a judgment
- Draws one fund-flow graph per heuristic that fired
- Optionally adds a plain-language explanation (never changes the score)

While "txlens serve" holds the same artifact index, analyze still scores
the transaction but skips the graphs and prints a warning.

Example:
  txlens analyze f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16
  txlens analyze <txid> --json report.json --md report.md
  txlens analyze <txid> --explain --llm-provider openai --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	analyzeCmd.Flags().BoolVar(&noGraphs, "no-graphs", false, "skip graph rendering")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall analysis timeout")

	// LLM flags
	addLLMFlags(analyzeCmd)
}

func addLLMFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&llmEnabled, "explain", false, "add a plain-language LLM explanation")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name (default from config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	txid := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
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

	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing: %s\n", txid)
		fmt.Fprintf(os.Stderr, "Provider: %s\n", cfg.Provider.BaseURL)
		fmt.Fprintf(os.Stderr, "Graphs: %v\n", cfg.Output.Graphs)
		fmt.Fprintln(os.Stderr)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if verbose && a.explainer.IsEnabled() {
		fmt.Fprintf(os.Stderr, "Explanation: %s/%s\n\n", a.explainer.ProviderName(), cfg.LLM.Model)
	}

	report, err := a.pipeline.Analyze(ctx, txid)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ %d inputs, %d outputs\n", len(report.Flow.Inputs), len(report.Flow.Outputs))
		fmt.Fprintf(os.Stderr, "✓ Score: %d (%s)\n", report.Score.Value, report.Score.Judgment)
		fmt.Fprintf(os.Stderr, "✓ Rendered %d graphs\n", len(report.Graphs))
		if report.Explanation != nil {
			fmt.Fprintf(os.Stderr, "✓ Explanation from %s/%s\n", report.Explanation.Provider, report.Explanation.Model)
		}
		fmt.Fprintln(os.Stderr)
	}

	if err := a.pipeline.RenderReport(report, outJSON, outMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
