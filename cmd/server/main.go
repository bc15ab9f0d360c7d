package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/config"
	"github.com/amitvarma/ai-loan-processor/internal/imaging"
	httpiface "github.com/amitvarma/ai-loan-processor/internal/interfaces/http"
	"github.com/amitvarma/ai-loan-processor/internal/pipeline"
	"github.com/amitvarma/ai-loan-processor/internal/report"
	"github.com/amitvarma/ai-loan-processor/internal/repository"
	"github.com/amitvarma/ai-loan-processor/internal/vision"
	"github.com/amitvarma/ai-loan-processor/pkg/database"
	"github.com/amitvarma/ai-loan-processor/pkg/utils"
)

func main() {
	// Load .env if present; real environment variables take precedence
	_ = gotenv.Load()

	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting AI Loan Document Processor",
		zap.String("model", cfg.OpenAI.Model),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := database.NewMigrator(db, logger).Run(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repository
	ledger := repository.NewVerifiedDocumentRepository(db, logger)

	// Initialize processing pipeline
	visionClient := vision.NewClient(vision.Config{
		APIKey:              cfg.OpenAI.APIKey,
		BaseURL:             cfg.OpenAI.BaseURL,
		Model:               cfg.OpenAI.Model,
		Temperature:         cfg.OpenAI.Temperature,
		MaxTokens:           cfg.OpenAI.MaxTokens,
		Timeout:             cfg.OpenAI.Timeout,
		RetryMaxAttempts:    cfg.OpenAI.RetryMaxAttempts,
		RetryInitialBackoff: cfg.OpenAI.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.OpenAI.RetryMaxBackoff,
	}, logger)

	normalizer := imaging.NewNormalizer(logger)
	processor := pipeline.NewProcessor(normalizer, visionClient, logger)
	aggregator := pipeline.NewAggregator(processor, visionClient, logger)

	// Initialize HTTP server
	handlers := httpiface.NewHandlers(aggregator, ledger, report.NewExcelExporter(logger), logger)
	server := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
