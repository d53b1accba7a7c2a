package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/txlens/internal/model"
	"github.com/ppiankov/txlens/internal/score"
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "txlens",
	Short: "txlens - Bitcoin transaction privacy scoring",
	Long: `txlens fetches a Bitcoin transaction from a public block explorer and
rates how much it reveals about its owner.

The score starts at 100 and moves with a fixed set of heuristics
(input merging, address reuse, round amounts, change handling,
CoinJoin-like outputs). Every adjustment is listed with its reason,
and a fund-flow graph is drawn for each heuristic that fires.

A low score means exposure, not identity.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of txlens.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("txlens %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.txlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("provider", "", "Esplora-compatible API root (e.g. https://mempool.space/api)")
	rootCmd.PersistentFlags().String("ua", "", "HTTP User-Agent")
	rootCmd.PersistentFlags().String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	rootCmd.PersistentFlags().String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "directory for rendered graphs")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("provider.base_url", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("http.user_agent", rootCmd.PersistentFlags().Lookup("ua"))
	_ = viper.BindPFlag("http.http_proxy", rootCmd.PersistentFlags().Lookup("http-proxy"))
	_ = viper.BindPFlag("http.https_proxy", rootCmd.PersistentFlags().Lookup("https-proxy"))
	_ = viper.BindPFlag("artifacts.dir", rootCmd.PersistentFlags().Lookup("artifacts-dir"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if err := registerDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}
	bindEnv(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".txlens"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// bindEnv reads environment variables that match TXLENS_*, nested keys
// joined by _ (TXLENS_ARTIFACTS_MAX_ENTRIES).
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("TXLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// registerDefaults makes every config key known to viper, so environment
// variables can override keys that no file sets.
func registerDefaults(v *viper.Viper, defaults *model.Config) error {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	setDefaults(v, "", tree)

	// omitempty hides these from the YAML tree
	v.SetDefault("llm.api_key", defaults.LLM.APIKey)
	v.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, value)
	}
}

// loadConfig decodes the effective configuration: flags, then environment,
// then the config file, then defaults.
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig rejects settings the analysis cannot honor
func validateConfig(cfg *model.Config) error {
	// A report holds up to one graph per rule
	if n := len(score.Rules()); cfg.Artifacts.MaxEntries > 0 && cfg.Artifacts.MaxEntries < n {
		return fmt.Errorf("artifacts.max_entries must be 0 (unbounded) or at least %d, got %d", n, cfg.Artifacts.MaxEntries)
	}
	return nil
}

// newLogger returns the structured logger used by long-running commands
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
