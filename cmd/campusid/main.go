package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edustack/campusid/internal/app"
	"github.com/edustack/campusid/internal/config"
	httpserver "github.com/edustack/campusid/internal/http"
	"github.com/edustack/campusid/internal/observability/logger"
	"github.com/edustack/campusid/internal/security/secretbox"
	"github.com/edustack/campusid/internal/store/pg"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "campusid",
		Short:         "Login federado y ciclo de vida de tokens para EduStack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CAMPUSID_CONFIG", "config.yaml"), "ruta del YAML de configuración")

	loadCfg := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.App.LogLevel,
			ServiceName: "campusid",
		})
		return cfg, nil
	}

	// ─── serve ───
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			c, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			srv := httpserver.NewServer(cfg.Server.Addr, c.Handler)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-stop:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	// ─── migrate ───
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}
			if cfg.Storage.DSN == "" {
				return fmt.Errorf("migrate requiere storage.dsn")
			}
			ctx := cmd.Context()
			store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{})
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}

	// ─── sweep ───
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweeps de mantenimiento de tokens",
	}

	sweepExpiredCmd := &cobra.Command{
		Use:   "expired",
		Short: "Refresca o limpia tokens ya vencidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}
			c, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			cleared, err := c.Tokens.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("cleared=%d\n", cleared)
			return nil
		},
	}

	var olderThanDays int
	sweepUnusedCmd := &cobra.Command{
		Use:   "unused",
		Short: "Revoca y borra cuentas federadas sin uso",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}
			if olderThanDays <= 0 {
				olderThanDays = cfg.Tokens.SweepUnusedDays
			}
			c, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			deleted, err := c.Tokens.SweepUnused(cmd.Context(), olderThanDays)
			if err != nil {
				return err
			}
			fmt.Printf("deleted=%d\n", deleted)
			return nil
		},
	}
	sweepUnusedCmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "cutoff en días (default: tokens.sweep_unused_days)")
	sweepCmd.AddCommand(sweepExpiredCmd, sweepUnusedCmd)

	// ─── enc ───
	var encAlgo string
	encCmd := &cobra.Command{
		Use:   "enc [secreto]",
		Short: "Cifra un secreto con la master key (para pegar en el YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := secretbox.NewFromEnv(encAlgo)
			if err != nil {
				return err
			}
			out, err := cipher.Encrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	encCmd.Flags().StringVar(&encAlgo, "algo", secretbox.AlgoAESGCM, "algoritmo: aes-gcm|xchacha20")

	root.AddCommand(serveCmd, migrateCmd, sweepCmd, encCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
