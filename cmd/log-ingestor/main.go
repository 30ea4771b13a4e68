package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/yscope/log-ingestor/internal/api/http"
	"github.com/yscope/log-ingestor/internal/config"
	"github.com/yscope/log-ingestor/internal/jobs"
	"github.com/yscope/log-ingestor/internal/model"
	"github.com/yscope/log-ingestor/internal/platform/database"
	"github.com/yscope/log-ingestor/internal/platform/logger"
	"github.com/yscope/log-ingestor/internal/scanner"
	"github.com/yscope/log-ingestor/internal/service"
	"github.com/yscope/log-ingestor/internal/sqslistener"
)

var (
	dbURLFlag      string
	s3EndpointFlag string
	hostFlag       string
	portFlag       uint16

	rootCmd = &cobra.Command{
		Use:   "log-ingestor",
		Short: "Control plane that discovers objects and submits compression jobs",
		RunE:  run,
	}
)

func main() {
	rootCmd.Flags().StringVar(&dbURLFlag, "db-url", "", "Compression-job table URL (mysql://, postgres:// or sqlite://) [required]")
	rootCmd.Flags().StringVar(&s3EndpointFlag, "s3-endpoint", "", "S3-compatible endpoint; forces path-style addressing")
	rootCmd.Flags().StringVar(&hostFlag, "host", "127.0.0.1", "HTTP listen host")
	rootCmd.Flags().Uint16Var(&portFlag, "port", 8080, "HTTP listen port")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log := logger.New("log-ingestor")
	logger.InstallGlobal(log)

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DBURL = dbURLFlag
	}
	if cmd.Flags().Changed("s3-endpoint") {
		cfg.S3Endpoint = s3EndpointFlag
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = hostFlag
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = portFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.LogResolved()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database unavailable")
	}
	defer func() { _ = db.Close() }()

	mgr := service.NewManager(
		jobs.NewDBSubmitter(db),
		service.Factories{
			NewObjectLister: func(ctx context.Context, creds model.Credentials, region string) (scanner.ObjectLister, error) {
				return scanner.NewS3Client(ctx, creds, region, cfg.S3Endpoint)
			},
			NewQueueAPI: func(ctx context.Context, creds model.Credentials, region string) (sqslistener.QueueAPI, error) {
				return sqslistener.NewSQSClient(ctx, creds, region)
			},
		},
		service.Settings{
			SizeThreshold: cfg.BufferSizeThreshold,
			IdleTimeout:   cfg.ListenerIdleTimeout,
			InboxSize:     cfg.ListenerInboxSize,
		},
	)

	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      httpapi.NewRouter(mgr),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
	return nil
}
