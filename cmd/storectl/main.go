package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shop/internal/config"
	"shop/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// 運用コマンド（マイグレーション、返金の突き合わせ、outbox再送など）
func main() {
	_ = godotenv.Load(".env", "../.env")

	rootCmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Operations tool for the shop API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(refundsCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// 各コマンド共通
func loadEnv() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.GoEnv)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
