package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/grammar-coach/backend/internal/api/handlers"
	"github.com/grammar-coach/backend/internal/audit"
	"github.com/grammar-coach/backend/internal/catalog"
	"github.com/grammar-coach/backend/internal/evaluation"
	"github.com/grammar-coach/backend/internal/llm"
	"github.com/grammar-coach/backend/internal/metrics"
	"github.com/grammar-coach/backend/internal/prompt"
	"github.com/grammar-coach/backend/pkg/config"
	appLogger "github.com/grammar-coach/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting grammar coach API server")

	grammarCatalog, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		appLogger.Fatal("Failed to load grammar catalog", zap.Error(err))
	}

	auditLog := audit.NewLogger(cfg.Audit.Path)

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.TranscriptionModel,
		cfg.LLM.Language,
		cfg.LLM.TimeoutSec,
	)

	prompts := prompt.NewBuilder(grammarCatalog)
	engine := evaluation.NewEngine(grammarCatalog, prompts, llmClient, llmClient, auditLog)

	metrics.Register()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	grammarHandler := handlers.NewGrammarHandler(grammarCatalog, engine)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Grammar checker backend running")
	})

	api := app.Group("/api")
	api.Get("/grammar-points", grammarHandler.ListGrammarPoints)
	api.Post("/text", grammarHandler.CheckText)
	api.Post("/grammar", grammarHandler.CheckGrammar)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
