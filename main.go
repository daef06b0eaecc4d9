package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/handlers"
	"github.com/gogotex/gogotex/backend/go-collab/internal/collab"
	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/internal/database"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/handler"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/repository"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/service"
	"github.com/gogotex/gogotex/backend/go-collab/internal/oidc"
	"github.com/gogotex/gogotex/backend/go-collab/internal/realtime"
	"github.com/gogotex/gogotex/backend/go-collab/internal/sessions"
	"github.com/gogotex/gogotex/backend/go-collab/internal/storage"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
	"github.com/gogotex/gogotex/backend/go-collab/internal/users"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v minio=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := gin.New()
	r.Use(cors(cfg.Collab.AllowedOrigins), gin.Logger(), gin.Recovery())

	rdb := connectRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	mongoClient := connectMongo(ctx, cfg.MongoDB)
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	}

	// documents and grants: Mongo when reachable, memory otherwise
	var repo service.Repository = repository.NewMemoryRepo()
	var grants service.AccessRepository = repository.NewMemoryAccessRepo()
	var userSvc *users.Service
	if mongoClient != nil {
		db := mongoClient.Database(cfg.MongoDB.Database)
		mrepo, err := repository.NewMongoRepo(ctx, db.Collection("documents"))
		if err != nil {
			logger.Warnf("mongo document repository unavailable, using memory: %v", err)
		} else {
			repo = mrepo
		}
		mgrants, err := repository.NewMongoAccessRepo(ctx, db.Collection("document_access"))
		if err != nil {
			logger.Warnf("mongo access repository unavailable, using memory: %v", err)
		} else {
			grants = mgrants
		}
		userSvc = users.NewService(users.NewMongoUserRepository(db.Collection("users")))
	}
	docSvc := service.New(repo)
	acl := service.NewAccessService(docSvc, grants)

	var store collab.Store = repo
	var archive *storage.ArchivingStore
	if cfg.MinIO.Endpoint != "" {
		objects, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("minio unavailable, snapshots will not be archived: %v", err)
		} else {
			archive = storage.NewArchivingStore(repo, objects)
			store = archive
		}
	}

	var presenceRepo sessions.Repository = sessions.NewMemoryRepository()
	if rdb != nil {
		presenceRepo = sessions.NewRedisRepository(rdb, "")
	}
	presence := sessions.NewService(presenceRepo, cfg.Collab.PresenceTTL)
	blacklist := sessions.NewBlacklist(rdb)

	verifier := buildVerifier(ctx, cfg, blacklist)

	reg := collab.NewRegistry(store,
		collab.WithMailboxSize(cfg.Collab.MailboxSize),
		collab.WithFlushTimeout(cfg.Collab.FlushTimeout),
	)
	mopts := []collab.ManagerOption{collab.WithPresence(presence), collab.WithAccess(acl)}
	if userSvc != nil {
		mopts = append(mopts, collab.WithUsers(userSvc))
	}
	mgr := collab.NewManager(verifier, reg, mopts...)
	realtime.NewGateway(mgr, cfg.Collab).Register(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		deps := gin.H{
			"mongo": cfg.MongoDB.URI == "" || mongoClient != nil,
			"redis": cfg.Redis.Host == "" || rdb != nil,
			"minio": cfg.MinIO.Endpoint == "" || archive != nil,
		}
		ready := true
		for _, ok := range deps {
			ready = ready && ok.(bool)
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"deps":     deps,
			"sessions": mgr.Sessions(),
			"rooms":    len(reg.Rooms()),
			"uptime":   time.Since(startTime).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	api := r.Group("/")
	api.Use(middleware.AuthMiddleware(verifier))
	handler.RegisterDocumentRoutes(api, docSvc, reg, acl)
	handler.RegisterAccessRoutes(api, acl)
	handlers.RegisterRoomRoutes(api, reg)
	handlers.RegisterPresenceRoutes(api, presence)
	if archive != nil {
		handlers.RegisterArchiveRoutes(api, archive)
	}
	api.GET("/api/v1/me", func(c *gin.Context) {
		id, _ := middleware.IdentityFrom(c)
		if userSvc != nil {
			if u, err := userSvc.ResolveIdentity(c.Request.Context(), id); err == nil {
				c.JSON(http.StatusOK, gin.H{"user": u})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"identity": id})
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("collab service listening on %s (websocket %s)", addr, cfg.Collab.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by the http server
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if err := mgr.Shutdown(sctx); err != nil {
		logger.Errorf("rooms not fully flushed: %v", err)
	}
}

// buildVerifier prefers Keycloak OIDC when configured and falls back to the
// shared HMAC secret, checked against the Redis revocation list.
func buildVerifier(ctx context.Context, cfg *config.Config, blacklist *sessions.Blacklist) tokens.Verifier {
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := strings.TrimRight(cfg.Keycloak.URL, "/")
		if cfg.Keycloak.Realm != "" {
			issuer += "/realms/" + cfg.Keycloak.Realm
		}
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err == nil {
			logger.Infof("verifying tokens against OIDC issuer %s", issuer)
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier, falling back to HMAC: %v", err)
	}
	return &tokens.HMACVerifier{
		Secret:  cfg.JWT.Secret,
		Issuer:  cfg.JWT.Issuer,
		Revoked: blacklist.IsRevoked,
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Host == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Host + ":" + cfg.Port, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Host, cfg.Port, err)
		_ = client.Close()
		return nil
	}
	logger.Infof("connected to Redis %s:%s", cfg.Host, cfg.Port)
	return client
}

// connectMongo returns nil when MongoDB is unset or unreachable, in which
// case documents are kept in memory.
func connectMongo(ctx context.Context, cfg config.MongoDBConfig) *mongo.Client {
	if cfg.URI == "" {
		return nil
	}
	client, err := database.ConnectMongo(ctx, cfg)
	if err != nil {
		logger.Warnf("could not connect to MongoDB, documents are kept in memory: %v", err)
		return nil
	}
	return client
}

// cors allows any origin in development and only the configured ones otherwise.
func cors(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if len(allowed) > 0 {
			origin = ""
			req := c.GetHeader("Origin")
			for _, o := range allowed {
				if strings.EqualFold(o, req) {
					origin = req
					break
				}
			}
		}
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
