// Command realityquest - игра «сделай в реальности, докажи на камеру».
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reality-quest/api/internal/app"
	"reality-quest/api/internal/config"
	"reality-quest/api/internal/logging"
)

var playerFlag string

var rootCmd = &cobra.Command{
	Use:           "realityquest",
	Short:         "Real-world challenges judged by a multimodal model",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&playerFlag, "player", "", "player id (default: PLAYER_ID)")
	rootCmd.AddCommand(playCmd, verifyCmd, serveCmd, botCmd, stateCmd, historyCmd, resetCmd, challengeCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup читает конфиг, поднимает логгер и собирает приложение.
func setup(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
		_ = log.Sync()
	}
	return a, cleanup, nil
}

func playerID(a *app.App) string {
	if playerFlag != "" {
		return playerFlag
	}
	return a.Cfg.PlayerID
}
