package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"shop/internal/bootstrap"
	infraRepo "shop/internal/infra/repository"
	"shop/internal/middleware"
	"shop/internal/publisher"
	"shop/internal/usecase"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if _, err := bootstrap.OpenDB(cfg, true); err != nil {
				return err
			}
			log.Info("migration completed")
			return nil
		},
	}
}

func refundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refunds",
		Short: "Refund maintenance",
	}

	var since time.Duration
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Record refunds that exist at the gateway but not locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since <= 0 {
				return fmt.Errorf("--since must be positive")
			}
			cfg, log, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			gormDB, err := bootstrap.OpenDB(cfg, false)
			if err != nil {
				return err
			}

			settler := usecase.NewPaymentSettler(cfg.CheckoutFlow, log)
			uc := usecase.NewPaymentUsecase(
				infraRepo.NewTxManagerGorm(gormDB),
				infraRepo.NewPaymentIntentGormRepository(gormDB),
				infraRepo.NewRefundGormRepository(gormDB),
				bootstrap.NewGateway(cfg, log),
				settler,
				usecase.PaymentConfig{GatewayTimeout: cfg.GatewayTimeout},
				log,
			)

			report, err := uc.ReconcileRefunds(cmd.Context(), time.Now().Add(-since))
			// 途中で止まっても、そこまでの件数は出す
			if perr := printJSON(cmd, report); perr != nil {
				return perr
			}
			return err
		},
	}
	reconcile.Flags().DurationVar(&since, "since", 24*time.Hour, "look back over refunds created at the gateway within this window")

	cmd.AddCommand(reconcile)
	return cmd
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Outbox maintenance",
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Publish pending outbox events once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			gormDB, err := bootstrap.OpenDB(cfg, false)
			if err != nil {
				return err
			}
			pub, err := bootstrap.NewPublisher(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			poller := publisher.NewOutboxPoller(infraRepo.NewOutboxGormRepository(gormDB), pub, cfg.OutboxPollInterval, cfg.OutboxMaxAttempts, log)
			n := poller.Flush(cmd.Context())
			log.Info("outbox flushed", zap.Int("published", n))
			return nil
		},
	}

	cmd.AddCommand(flush)
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Catalog cache maintenance",
	}

	invalidate := &cobra.Command{
		Use:   "invalidate [product-id]",
		Short: "Drop one product from the catalog cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid product id: %q", args[0])
			}

			cfg, log, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.RedisAddr == "" {
				return fmt.Errorf("REDIS_ADDR is not set")
			}

			gormDB, err := bootstrap.OpenDB(cfg, false)
			if err != nil {
				return err
			}
			_, pc, err := bootstrap.NewCatalog(cmd.Context(), cfg, infraRepo.NewProductGormRepository(gormDB), log)
			if err != nil {
				return err
			}
			if err := pc.Invalidate(cmd.Context(), id); err != nil {
				return err
			}
			log.Info("cache invalidated", zap.Int64("product_id", id))
			return nil
		},
	}

	cmd.AddCommand(invalidate)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		sub  int64
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub <= 0 {
				return fmt.Errorf("--sub must be a positive user id")
			}
			cfg, _, err := loadEnv()
			if err != nil {
				return err
			}

			tok, err := middleware.IssueToken(cfg.JWTSecret, sub, role, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&sub, "sub", 0, "user id")
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
