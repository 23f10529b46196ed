package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/converso-ai/chat-backend/config"
	"github.com/converso-ai/chat-backend/pkg/db"
	"github.com/converso-ai/chat-backend/pkg/logger"
	"github.com/converso-ai/chat-backend/pkg/repository"
	"github.com/converso-ai/chat-backend/pkg/repository/object"
	"github.com/converso-ai/chat-backend/pkg/worker"
)

func main() {
	if err := config.Init(config.ParseConfigFlag()); err != nil {
		log.Fatal(err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zapLogger, err := logger.GetZapLogger(ctx)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = zapLogger.Sync()
	}()

	repo := repository.NewRepository(db.GetSharedConnection())

	storage, err := object.NewMinIOStorage(ctx, config.Config.Minio, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to object storage", zap.Error(err))
	}

	vectorDB, vclose, err := repository.NewVectorDatabase(ctx, config.Config.Milvus.Host, config.Config.Milvus.Port, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to vector database", zap.Error(err))
	}
	defer func() {
		if err := vclose(); err != nil {
			zapLogger.Error("Failed to close vector database connection", zap.Error(err))
		}
	}()

	cleanupConfig := config.Config.Cleanup
	pool := worker.NewCleanupPool(cleanupConfig.PoolSize)
	engine := worker.NewEngine(repo, vectorDB, storage, pool, zapLogger)
	reconciler := worker.NewReconciler(
		engine,
		repo,
		cleanupConfig.ReconcileInterval,
		cleanupConfig.KnowledgeBaseBatchSize,
		cleanupConfig.ChatBatchSize,
		zapLogger,
	)

	reconciler.Start(ctx)
	zapLogger.Info("Cleanup service started",
		zap.Duration("reconcile_interval", cleanupConfig.ReconcileInterval),
		zap.Int("pool_size", pool.Width()),
	)

	quitSig := make(chan os.Signal, 1)
	signal.Notify(quitSig, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitSig

	zapLogger.Info("Shutting down", zap.String("signal", sig.String()))
	reconciler.Stop()
}
