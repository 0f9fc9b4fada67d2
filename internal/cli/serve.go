package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spacefeed/spacefeed/internal/config"
	"github.com/spacefeed/spacefeed/internal/db"
	"github.com/spacefeed/spacefeed/internal/job"
	"github.com/spacefeed/spacefeed/internal/server"
	"github.com/spacefeed/spacefeed/internal/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion server",
	Long: `Start the control API and wait for start/stop commands. Ingestion
runs in the background; progress is observable via /stats and /ws/stats.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	logger.Info("starting spacefeed", "version", Version, "port", cfg.Port, "collection_mode", cfg.CollectionMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
	}, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to document store: %w", err)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	store, err := storage.NewClient(ctx, storage.Config{
		Key:      cfg.SpacesKey,
		Secret:   cfg.SpacesSecret,
		Region:   cfg.SpacesRegion,
		Bucket:   cfg.SpacesBucket,
		Prefix:   cfg.SpacesPrefix,
		Endpoint: cfg.SpacesEndpoint,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to object storage: %w", err)
	}

	writer := db.NewStore(dbClient, logger)
	controller := job.New(store, writer, cfg.CollectionMode, cfg.CollectionName, logger)

	srv := server.New(":"+cfg.Port, controller, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("control API: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
