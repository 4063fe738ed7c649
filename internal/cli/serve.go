package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kromer-network/kromer/internal/daemon"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

// ─── serve ──────────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "override [api].host")
	serveCmd.Flags().Int("port", 0, "override [api].port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Kromer server",
	Long: `Start the HTTP API and websocket gateway. Runs until interrupted;
SIGINT or SIGTERM triggers a graceful shutdown.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}

	logger := observability.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", Version).
		Str("addr", cfg.Addr()).
		Str("data", cfg.DatabaseDir()).
		Msg("starting kromer")

	if err := daemon.Run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("kromer stopped")
		return err
	}
	return nil
}
