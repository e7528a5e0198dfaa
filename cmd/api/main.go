package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/api/handlers"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/cache/redis"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/catalog"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/docctx"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evaluation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/index/milvus"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/ingestion"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	ratelimitmw "github.com/Kelm-ai/DocAnalyzer-sub000/internal/middleware/ratelimit"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/middleware/security"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/middleware/validation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/remediation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/repeatability"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/report"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/trace"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/trace/neo4j"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
	appLogger "github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/ratelimit"
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

	appLogger.Info("Starting DocAnalyzer API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	catalogStore := catalog.NewStore(sqliteClient)
	err = catalogStore.InitializeSeedCatalog()
	if err != nil {
		appLogger.Fatal("Failed to seed requirement catalogue", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.CreateCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var traceBuilder *trace.Builder
	neo4jClient, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password)
	if err != nil {
		appLogger.Warn("Neo4j unavailable, traceability graph disabled", zap.Error(err))
	} else {
		defer neo4jClient.Close(context.Background())
		traceBuilder = trace.NewBuilder(neo4jClient, catalogStore)
	}

	tokenLimiter := ratelimit.NewLimiter(ratelimit.Config{
		TokensPerMinute: cfg.LLM.TokensPerMinute,
		Logger:          appLogger.GetLogger(),
	})
	llmClient := llm.NewClient(cfg.LLM, tokenLimiter)
	secondaryClient := llm.NewSecondaryClient(cfg.LLM, tokenLimiter)

	retriever := evidence.NewRetriever(milvusClient, sqliteClient, llmClient, cfg.Retrieval)
	contextProvider := docctx.NewProvider(sqliteClient, redisClient)
	engine := verdict.NewEngine(llmClient, cfg.Evaluation)
	reconciler := verdict.NewReconciler(secondaryClient)
	planner := remediation.NewPlanner(secondaryClient)

	pipeline := evaluation.NewPipeline(evaluation.Deps{
		DB:         sqliteClient,
		Catalog:    catalogStore,
		Retriever:  retriever,
		Context:    contextProvider,
		Engine:     engine,
		Reconciler: reconciler,
		Planner:    planner,
		Trace:      traceBuilder,
		Cache:      redisClient,
	}, cfg.Evaluation)

	processor := ingestion.NewProcessor(sqliteClient, milvusClient, llmClient, redisClient, traceBuilder)
	runner := repeatability.NewRunner(pipeline, catalogStore, sqliteClient, cfg.Batch)
	summarizer := report.NewSummaryGenerator(secondaryClient)

	wsHandler := handlers.NewWebSocketHandler(sqliteClient)

	queue := evaluation.NewQueue(pipeline, cfg.Evaluation, wsHandler.Publish)
	queue.Start()

	if traceBuilder != nil {
		if err := traceBuilder.SeedCatalog(context.Background()); err != nil {
			appLogger.Warn("Failed to seed trace graph", zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Org-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	rateLimiter := ratelimitmw.New(ratelimitmw.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimitPerMinute,
	})
	defer rateLimiter.Stop()
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{}))

	evaluationHandler := handlers.NewEvaluationHandler(sqliteClient, catalogStore, queue, summarizer, traceBuilder)
	repeatabilityHandler := handlers.NewRepeatabilityHandler(runner, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient, traceBuilder)

	api := app.Group("/api/v1")

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Get("/documents/:id/trace", documentHandler.GetTrace)

	api.Post("/evaluations", evaluationHandler.StartEvaluation)
	api.Get("/evaluations", evaluationHandler.ListEvaluations)
	api.Get("/evaluations/:id", evaluationHandler.GetEvaluation)
	api.Get("/evaluations/:id/results", evaluationHandler.GetResults)
	api.Get("/evaluations/:id/report", evaluationHandler.GetReport)
	api.Delete("/evaluations/:id", evaluationHandler.DeleteEvaluation)
	api.Get("/queue", evaluationHandler.GetQueue)

	api.Get("/requirements", evaluationHandler.ListRequirements)
	api.Get("/requirements/:id/coverage", evaluationHandler.GetRequirementCoverage)

	api.Post("/batches", repeatabilityHandler.StartBatch)
	api.Get("/batches", repeatabilityHandler.ListBatches)
	api.Get("/batches/compare", repeatabilityHandler.CompareBatches)
	api.Get("/batches/:id/repeatability", repeatabilityHandler.GetRepeatability)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/evaluations/:id", websocket.New(wsHandler.HandleConnection))

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Evaluation queue did not drain in time", zap.Error(err))
	}

	appLogger.Info("Server stopped")
}
