package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/txlens/internal/events"
	"github.com/ppiankov/txlens/internal/graph"
	"github.com/ppiankov/txlens/internal/llm"
	"github.com/ppiankov/txlens/internal/model"
	"github.com/ppiankov/txlens/internal/score"
)

// Deps are the collaborators a pipeline is assembled from. Every field may be
// nil: without Store no graphs are rendered, without Explainer no explanation
// is attached and without Publisher nothing is announced.
type Deps struct {
	Limiter   Waiter
	Store     graph.Store
	Explainer *llm.Explainer
	Publisher events.Publisher
}

// Pipeline orchestrates the analysis of one transaction
type Pipeline struct {
	fetcher   *Fetcher
	scorer    *score.Scorer
	renderer  *graph.Renderer // nil when graphs are disabled
	explainer *llm.Explainer
	publisher events.Publisher
	config    *model.Config
	now       func() time.Time
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(cfg *model.Config, deps Deps) *Pipeline {
	var renderer *graph.Renderer
	if cfg.Output.Graphs && deps.Store != nil {
		renderer = graph.NewRenderer(graph.Options{
			Width:   cfg.Render.Width,
			Height:  cfg.Render.Height,
			Seed:    cfg.Render.Seed,
			Updates: cfg.Render.Updates,
		}, deps.Store)
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Pipeline{
		fetcher: NewFetcher(
			cfg.Provider.BaseURL,
			cfg.HTTP.Timeout,
			cfg.HTTP.UserAgent,
			cfg.HTTP.MaxBodyBytes,
			deps.Limiter,
			cfg.HTTP.HTTPProxy,
			cfg.HTTP.HTTPSProxy,
			cfg.HTTP.NoProxy,
		),
		scorer:    score.NewScorer(),
		renderer:  renderer,
		explainer: deps.Explainer,
		publisher: publisher,
		config:    cfg,
		now:       time.Now,
	}
}

// Analyze fetches, scores and visualizes one transaction. Fetch failures are
// ErrInvalidOrUnavailable or ErrMalformedTransaction; rendering failures are
// fatal. The explanation and the event are best effort and only add warnings.
func (p *Pipeline) Analyze(ctx context.Context, txid string) (*model.Report, error) {
	// 1. Fetch
	tx, err := p.fetcher.Fetch(ctx, txid)
	if err != nil {
		return nil, err
	}

	// 2. Extract and score
	flow := Extract(tx)
	result := p.scorer.Calculate(flow)
	labels := graph.AssignLabels(flow)

	report := &model.Report{
		TxID:      strings.ToLower(tx.TxID),
		Provider:  p.fetcher.BaseURL(),
		FetchedAt: p.now().UTC(),
		Confirmed: tx.Confirmed,
		Fee:       tx.Fee,
		Flow:      flow,
		Labels:    labels.ByAddress(),
		Score:     result,
	}

	// 3. One graph per breakdown entry
	if p.renderer != nil && len(result.Entries) > 0 {
		graphs, err := p.renderer.RenderAll(ctx, report.TxID, result.Entries, flow, labels)
		if err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
		report.Graphs = graphs
	}

	// 4. Explanation runs after scoring and never touches the score
	if p.explainer.IsEnabled() {
		exp, err := p.explainer.Explain(ctx, *report)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("explanation unavailable: %v", err))
		} else {
			report.Explanation = exp
		}
	}

	// 5. Announce
	if err := p.publisher.Publish(ctx, report); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("event not published: %v", err))
	}

	return report, nil
}

// RenderReport writes the report to the requested outputs and prints the
// summary to stdout.
func (p *Pipeline) RenderReport(report *model.Report, jsonPath string, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	// The explanation goes to its own file so the scored report stays rule-only
	if report.Explanation != nil && mdPath != "" {
		llmPath := strings.TrimSuffix(mdPath, ".md") + ".llm.md"
		if err := os.WriteFile(llmPath, []byte(llm.RenderMarkdown(report.Explanation)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to write explanation: %v\n", err)
		} else if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote explanation: %s\n", llmPath)
		}
	}

	RenderSummary(os.Stdout, report)
	return nil
}
