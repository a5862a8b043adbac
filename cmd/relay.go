package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"wisochat/pkg/config"
	"wisochat/pkg/logger"
	"wisochat/pkg/relay"

	"github.com/spf13/cobra"
)

var relayPort int

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the broadcast relay",
	Long:  "Runs the WebSocket relay that forwards every chat message to the other connected clients, with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}
		applyRelayFlags(cfg, relayPort)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("invalid config: %v\n", err)
			return
		}

		appLogger, closeLog, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		defer func() { _ = closeLog() }()
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.relay")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := relay.NewServer(cfg.Server, appLogger)
		log.Info("Relay starting", "address", cfg.Server.Addr())
		if err := srv.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().IntVarP(&relayPort, "port", "p", 0, "listen port (overrides server.port)")
}

func applyRelayFlags(cfg *config.Config, port int) {
	if port > 0 {
		cfg.Server.Port = port
	}
}
