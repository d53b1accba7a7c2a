package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/txlens/internal/cache"
	"github.com/ppiankov/txlens/internal/events"
	"github.com/ppiankov/txlens/internal/llm"
	"github.com/ppiankov/txlens/internal/model"
	"github.com/ppiankov/txlens/internal/pipeline"
	"github.com/ppiankov/txlens/internal/worker"
)

// app holds the collaborators shared by analyze, batch and serve
type app struct {
	cfg       *model.Config
	store     *cache.Store // nil when graphs are disabled
	explainer *llm.Explainer
	publisher events.Publisher
	pipeline  *pipeline.Pipeline
}

func newApp(cfg *model.Config) (*app, error) {
	a := &app{cfg: cfg}
	deps := pipeline.Deps{
		Limiter: worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
	}

	if cfg.Output.Graphs && cfg.Artifacts.Enabled {
		store, err := openStore(cfg)
		switch {
		case errors.Is(err, cache.ErrIndexLocked):
			// Typically a running "txlens serve" sharing the artifact directory
			fmt.Fprintf(os.Stderr, "Warning: %v; continuing without graphs\n", err)
		case err != nil:
			return nil, err
		default:
			a.store = store
			deps.Store = store
		}
	}

	// Optional collaborators never stop the tool from scoring
	explainer, err := llm.NewExplainer(llm.ConfigFromModel(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize LLM provider: %v\n", err)
	} else {
		a.explainer = explainer
		deps.Explainer = explainer
	}

	publisher, err := events.New(cfg.Events)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize event publisher: %v\n", err)
		publisher = events.Nop{}
	}
	a.publisher = publisher
	deps.Publisher = publisher

	a.pipeline = pipeline.NewPipeline(cfg, deps)
	return a, nil
}

// Close releases the artifact index and the event producer
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	return errors.Join(errs...)
}

func openStore(cfg *model.Config) (*cache.Store, error) {
	store, err := cache.Open(cache.Options{
		Dir:        cfg.Artifacts.Dir,
		IndexPath:  cfg.Artifacts.IndexPath,
		MaxEntries: cfg.Artifacts.MaxEntries,
		TTL:        cfg.Artifacts.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return store, nil
}

// applyLLMFlags enables the explanation provider chosen on the command line
// and fills in its key from the provider's usual variable when the config
// has none.
func applyLLMFlags(cfg *model.Config, enabled bool, provider, modelName string) error {
	if enabled {
		cfg.LLM.Provider = provider
		if modelName != "" {
			cfg.LLM.Model = modelName
		}
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = baseURL
		}
	}
	return nil
}
