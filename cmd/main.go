package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/docchat/api"
	"github.com/fyerfyer/docchat/api/handler"
	"github.com/fyerfyer/docchat/api/middleware"
	"github.com/fyerfyer/docchat/config"
	"github.com/fyerfyer/docchat/internal/cache"
	"github.com/fyerfyer/docchat/internal/database"
	"github.com/fyerfyer/docchat/internal/document"
	"github.com/fyerfyer/docchat/internal/embedding"
	"github.com/fyerfyer/docchat/internal/llm"
	"github.com/fyerfyer/docchat/internal/repository"
	"github.com/fyerfyer/docchat/internal/services"
	"github.com/fyerfyer/docchat/internal/vectordb"
	"github.com/fyerfyer/docchat/pkg/storage"
	"github.com/fyerfyer/docchat/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// API密钥等敏感配置通常放在.env里
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := setupLogger(cfg)
	gin.SetMode(cfg.Server.Mode)

	if err := database.Setup(&database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}, logger); err != nil {
		logger.Fatalf("Failed to setup database: %v", err)
	}
	defer database.Close()

	fileStorage, err := setupStorage(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to setup storage: %v", err)
	}

	vectorDB, err := setupVectorDB(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to setup vector database: %v", err)
	}
	defer vectorDB.Close()

	embedder, err := embedding.NewClient("openai",
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		logger.Fatalf("Failed to create embedding client: %v", err)
	}

	llmClient, err := llm.NewClient("openai",
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithBaseURL(cfg.LLM.Endpoint),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		logger.Fatalf("Failed to create LLM client: %v", err)
	}

	chain := llm.NewRetrievalChain(llmClient,
		llm.WithChainMaxTokens(cfg.LLM.MaxTokens),
		llm.WithChainTemperature(cfg.LLM.Temperature),
		llm.WithMaxHistoryTurns(cfg.Search.HistoryLimit),
	)

	answerCache, err := cache.NewCache(cache.Config{
		Type:            cfg.Cache.Type,
		RedisAddr:       cfg.Cache.Address,
		RedisPassword:   cfg.Cache.Password,
		RedisDB:         cfg.Cache.DB,
		DefaultTTL:      time.Duration(cfg.Cache.TTL) * time.Second,
		CleanupInterval: 10 * time.Minute,
	})
	if err != nil {
		logger.Fatalf("Failed to create cache: %v", err)
	}

	splitter, err := document.NewCharacterSplitter(document.SplitterConfig{
		Separator:    cfg.Document.Separator,
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
	})
	if err != nil {
		logger.Fatalf("Failed to create splitter: %v", err)
	}

	db := database.MustDB()
	documentRepo := repository.NewDocumentRepositoryWithDB(db)
	chatRepo := repository.NewChatRepositoryWithDB(db)

	docOpts := []services.DocumentOption{
		services.WithChunking(cfg.Document.ChunkSize, cfg.Document.ChunkOverlap),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithLogger(logger),
	}

	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = taskqueue.NewQueue(cfg.Queue.Type, &taskqueue.Config{
			RedisAddr:     cfg.Queue.RedisAddr,
			RedisPassword: cfg.Queue.RedisPassword,
			RedisDB:       cfg.Queue.RedisDB,
			Concurrency:   cfg.Queue.Concurrency,
			RetryLimit:    cfg.Queue.RetryLimit,
			RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
		})
		if err != nil {
			logger.Fatalf("Failed to create task queue: %v", err)
		}
		defer queue.Close()
		docOpts = append(docOpts,
			services.WithTaskQueue(queue),
			services.WithAsyncProcessing(true),
		)
	}

	documentService := services.NewDocumentService(fileStorage, splitter, embedder, vectorDB, documentRepo, docOpts...)
	chatService := services.NewChatService(chatRepo, services.WithChatLogger(logger))
	qaService := services.NewQAService(embedder, vectorDB, chain, chatService, answerCache,
		services.WithSearchLimit(cfg.Search.Limit),
		services.WithMinScore(cfg.Search.MinScore),
		services.WithHistoryLimit(cfg.Search.HistoryLimit),
		services.WithCacheTTL(time.Duration(cfg.Cache.TTL)*time.Second),
		services.WithQALogger(logger),
	)

	var worker taskqueue.Worker
	if queue != nil {
		redisQueue, ok := queue.(*taskqueue.RedisQueue)
		if !ok {
			logger.Fatalf("Task queue type %s does not support workers", cfg.Queue.Type)
		}
		worker, err = services.StartIngestWorker(redisQueue, documentService, &taskqueue.Config{
			Concurrency: cfg.Queue.Concurrency,
			RetryLimit:  cfg.Queue.RetryLimit,
			RetryDelay:  time.Duration(cfg.Queue.RetryDelay) * time.Second,
			RedisAddr:   cfg.Queue.RedisAddr,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to start ingest worker: %v", err)
		}
		defer worker.Stop()
	}

	// 启动时批量导入指定目录的文档
	if cfg.Document.IngestDir != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			count, err := documentService.IngestDirectory(ctx, cfg.Document.IngestDir)
			if err != nil {
				logger.WithError(err).WithField("dir", cfg.Document.IngestDir).
					Error("Directory ingestion failed")
				return
			}
			logger.WithFields(logrus.Fields{
				"dir":   cfg.Document.IngestDir,
				"count": count,
			}).Info("Directory ingestion completed")
		}()
	}

	var taskHandler *handler.TaskHandler
	if queue != nil {
		taskHandler = handler.NewTaskHandler(queue)
	}

	router := api.SetupRouter(
		handler.NewDocumentHandler(documentService),
		handler.NewChatHandler(chatService, qaService),
		handler.NewQAHandler(qaService),
		taskHandler,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}

// setupLogger 配置全局日志器，与HTTP中间件共享同一个实例
func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Log.File != "" {
		middleware.SetLogFile(cfg.Log.File)
	}

	return logger
}

// setupStorage 按配置创建文件存储
func setupStorage(cfg *config.Config, logger *logrus.Logger) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "minio":
		logger.WithField("endpoint", cfg.Storage.Endpoint).Info("Using MinIO storage")
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
	default:
		if err := os.MkdirAll(cfg.Storage.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		logger.WithField("path", cfg.Storage.Path).Info("Using local storage")
		return storage.NewLocalStorage(storage.LocalConfig{Path: cfg.Storage.Path})
	}
}

// setupVectorDB 按配置创建向量数据库，faiss初始化失败时回退到内存实现
func setupVectorDB(cfg *config.Config, logger *logrus.Logger) (vectordb.Repository, error) {
	vdbConfig := vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		Dimension:         cfg.VectorDB.Dim,
		DistanceType:      vectordb.DistanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	}

	repo, err := vectordb.NewRepository(vdbConfig)
	if err != nil && cfg.VectorDB.Type == "faiss" {
		logger.WithError(err).Warn("Faiss initialization failed, falling back to in-memory vector store")
		vdbConfig.Type = "memory"
		vdbConfig.InMemory = true
		repo, err = vectordb.NewRepository(vdbConfig)
	}
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"type":      vdbConfig.Type,
		"dimension": vdbConfig.Dimension,
		"distance":  string(vdbConfig.DistanceType),
	}).Info("Vector database ready")

	return repo, nil
}
