package model

import "time"

// Config is the complete txlens configuration. Field tags are shared by the
// YAML config file and viper decoding.
type Config struct {
	Provider     ProviderConfig     `yaml:"provider" mapstructure:"provider"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Artifacts    ArtifactsConfig    `yaml:"artifacts" mapstructure:"artifacts"`
	Render       RenderConfig       `yaml:"render" mapstructure:"render"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Events       EventsConfig       `yaml:"events" mapstructure:"events"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// ProviderConfig selects the Esplora-compatible explorer API
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// HTTPConfig controls the outbound HTTP client
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"` // 0 keeps the client default
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// RateLimitingConfig limits requests sent to the provider
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ArtifactsConfig bounds the rendered graph store
type ArtifactsConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir        string        `yaml:"dir" mapstructure:"dir"`
	IndexPath  string        `yaml:"index_path" mapstructure:"index_path"`
	MaxEntries int           `yaml:"max_entries" mapstructure:"max_entries"`
	TTL        time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// RenderConfig controls graph images
type RenderConfig struct {
	Width   int    `yaml:"width" mapstructure:"width"`
	Height  int    `yaml:"height" mapstructure:"height"`
	Seed    uint64 `yaml:"seed" mapstructure:"seed"`       // Layout seed, fixed for visual stability
	Updates int    `yaml:"updates" mapstructure:"updates"` // Force-directed iterations
}

// ServerConfig controls the web presenter
type ServerConfig struct {
	Addr                    string        `yaml:"addr" mapstructure:"addr"`
	MaxConnections          int           `yaml:"max_connections" mapstructure:"max_connections"`
	ClientRequestsPerSecond float64       `yaml:"client_requests_per_second" mapstructure:"client_requests_per_second"`
	ClientBurst             int           `yaml:"client_burst" mapstructure:"client_burst"`
	ReadTimeout             time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LLMConfig configures the optional explanation provider
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "" disables, "openai"
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EventsConfig configures optional Kafka publication of finished analyses
type EventsConfig struct {
	Brokers string `yaml:"brokers" mapstructure:"brokers"` // Comma-separated, empty disables
	Topic   string `yaml:"topic" mapstructure:"topic"`
}

// OutputConfig controls CLI output
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	Graphs  bool `yaml:"graphs" mapstructure:"graphs"` // Render one graph per triggered rule
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL: "https://blockstream.info/api",
		},
		HTTP: HTTPConfig{
			Timeout:      0,
			UserAgent:    "txlens/0.1 (+https://github.com/ppiankov/txlens)",
			MaxBodyBytes: 5_000_000,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Artifacts: ArtifactsConfig{
			Enabled:    true,
			Dir:        "./static/graphs",
			IndexPath:  "./static/graphs/index.db",
			MaxEntries: 500,
			TTL:        7 * 24 * time.Hour,
		},
		Render: RenderConfig{
			Width:   800,
			Height:  600,
			Seed:    42,
			Updates: 60,
		},
		Server: ServerConfig{
			Addr:                    ":8080",
			MaxConnections:          64,
			ClientRequestsPerSecond: 2,
			ClientBurst:             5,
			ReadTimeout:             15 * time.Second,
			ShutdownTimeout:         10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "",
			Model:     "gpt-4o-mini",
			Timeout:   30,
			MaxTokens: 400,
		},
		Events: EventsConfig{
			Topic: "txlens.analyses",
		},
		Output: OutputConfig{
			Graphs: true,
		},
	}
}
