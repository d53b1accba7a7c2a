package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/txlens/internal/model"
)

// Explainer attaches optional plain-language explanations to reports.
// It runs after scoring and never changes the score.
type Explainer struct {
	provider Provider
	config   Config
}

// NewExplainer creates an explainer. An empty provider yields a disabled
// explainer, not an error.
func NewExplainer(config Config) (*Explainer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Explainer{provider: provider, config: config}, nil
}

// NewExplainerWithProvider wraps an existing provider
func NewExplainerWithProvider(provider Provider, config Config) *Explainer {
	return &Explainer{provider: provider, config: config}
}

// IsEnabled reports whether a provider is configured
func (e *Explainer) IsEnabled() bool {
	return e != nil && e.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (e *Explainer) ProviderName() string {
	if !e.IsEnabled() {
		return ""
	}
	return e.provider.Name()
}

// Explain returns an explanation of report, or nil when disabled
func (e *Explainer) Explain(ctx context.Context, report model.Report) (*model.Explanation, error) {
	if !e.IsEnabled() {
		return nil, nil
	}

	resp, err := e.provider.Explain(ctx, ExplainRequest{
		Report:    report,
		Model:     e.config.Model,
		MaxTokens: e.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.provider.Name(), err)
	}

	return &model.Explanation{
		Provider: e.provider.Name(),
		Model:    resp.Model,
		Text:     resp.Text,
	}, nil
}

// RenderMarkdown renders an explanation as a standalone Markdown section
func RenderMarkdown(exp *model.Explanation) string {
	if exp == nil || strings.TrimSpace(exp.Text) == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Plain-language explanation\n\n")
	fmt.Fprintf(&b, "> Generated by %s", exp.Provider)
	if exp.Model != "" {
		fmt.Fprintf(&b, " (%s)", exp.Model)
	}
	b.WriteString(". The score above is computed by fixed rules and is not affected by this text.\n\n")
	b.WriteString(exp.Text)
	b.WriteString("\n")
	return b.String()
}
