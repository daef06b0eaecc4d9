package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/internal/database"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/handler"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/service"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
)

// Standalone document REST service without the realtime endpoint. Documents
// are never live here, so every write goes straight to the store.
func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	port := os.Getenv("DOC_SERVICE_PORT")
	if port == "" {
		port = "5010"
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()
	svc := service.NewMemoryService()
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB)
		if err != nil {
			logger.Warnf("cannot connect to MongoDB (%v), using memory-backed repo", err)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			msvc, err := service.NewMongoService(ctx, client.Database(cfg.MongoDB.Database).Collection("documents"))
			if err != nil {
				logger.Warnf("mongo document service unavailable (%v), using memory-backed repo", err)
			} else {
				svc = msvc
			}
		}
	}

	handler.RegisterDocumentRoutes(r, svc, nil, nil)

	logger.Infof("document service listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
