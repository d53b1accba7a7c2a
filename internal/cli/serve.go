package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/txlens/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web interface",
	Long: `Serve starts the web interface and JSON API:
  GET  /               form to submit a transaction id
  POST /analyze        HTML report with score, breakdown and graphs
  GET  /api/tx/{txid}  JSON report
  GET  /graphs/{file}  rendered graph images
  GET  /healthz        liveness

Stops gracefully on SIGINT or SIGTERM.

Example:
  txlens serve
  txlens serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().Int("max-connections", 0, "maximum concurrent connections (default from config)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.max_connections", serveCmd.Flags().Lookup("max-connections"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if err := applyLLMFlags(cfg, false, "", ""); err != nil {
		return err
	}

	logger := newLogger(verbose)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	graphsDir := ""
	if a.store != nil {
		graphsDir = a.store.Dir()
	}

	srv, err := server.New(a.pipeline, graphsDir, cfg.Server, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
