package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/txlens/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Explain generates a plain-language explanation of a scored report
	Explain(ctx context.Context, req ExplainRequest) (*ExplainResponse, error)
}

// ExplainRequest contains the input for an explanation
type ExplainRequest struct {
	// Report is the scored analysis to explain. Only the score, judgment,
	// breakdown and node labels are sent; addresses and the txid never are.
	Report model.Report

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// ExplainResponse contains the LLM's output
type ExplainResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", "anthropic", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 400,
	}
}

const systemPrompt = "You explain Bitcoin transaction privacy heuristics to non-experts. You never speculate about the identity of participants."

// BuildPrompt constructs the default explanation prompt
func BuildPrompt(report model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, `A transaction was scored with fixed privacy heuristics. The score starts at 100 and each triggered heuristic adds its delta; it is not clamped.

RULES:
1. Explain only the heuristics listed below. Do not introduce others.
2. Do not cite sources or include links.
3. Do not change or re-derive the score.

Result:
- Score: %d
- Judgment: %s
- Inputs: %d, Outputs: %d

Triggered heuristics:
`, report.Score.Value, report.Score.Judgment, len(report.Flow.Inputs), len(report.Flow.Outputs))

	if len(report.Score.Entries) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, e := range report.Score.Entries {
		fmt.Fprintf(&b, "- %s (%+d): %s\n", e.Label, e.Delta, e.Rationale)
	}

	b.WriteString("\nIn 3-4 sentences, tell the owner of \"Your Wallet\" what these signals reveal and one practical way to avoid them next time.")

	return b.String()
}

// checkResponse rejects explanations that cite links. No sources are given to
// the model, so any URL in the output is invented.
func checkResponse(text string) error {
	if urls := extractURLs(text); len(urls) > 0 {
		return fmt.Errorf("explanation cited external URL: %s", urls[0])
	}
	return nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s\)]+`)

// extractURLs extracts all URLs from text
func extractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)

	seen := make(map[string]bool)
	var unique []string
	for _, url := range matches {
		url = strings.TrimRight(url, ".,;:!?")
		if !seen[url] {
			seen[url] = true
			unique = append(unique, url)
		}
	}

	return unique
}
