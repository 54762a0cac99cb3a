package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/roomchat/internal/attachment"
	"github.com/weiawesome/wes-io-live/roomchat/internal/auth"
	"github.com/weiawesome/wes-io-live/roomchat/internal/cache"
	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/handler"
	"github.com/weiawesome/wes-io-live/roomchat/internal/hub"
	"github.com/weiawesome/wes-io-live/roomchat/internal/presence"
	"github.com/weiawesome/wes-io-live/roomchat/internal/repository"
	"github.com/weiawesome/wes-io-live/roomchat/internal/service"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/database"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/idgen"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/storage"
)

// roomCache is what the service needs from a cache driver.
type roomCache interface {
	cache.RoomCache
	cache.PresenceCache
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis, shared by the cache and the redis publisher
	var rdb *redis.Client
	if cfg.Cache.Driver == "redis" || cfg.Events.Driver == "redis" {
		rdb, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	// Initialize message store
	store, err := newMessageStore(cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open message store")
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Msg("message store ready")

	// Initialize cache
	rooms := newRoomCache(cfg.Cache, rdb)
	defer rooms.Close()

	// Initialize event publisher
	events, err := pubsub.NewPublisher(cfg.Events, rdb)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to create event publisher")
	}
	defer events.Close()

	// Initialize attachment storage
	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to create attachment storage")
	}

	// Initialize auth
	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token validator")
	}
	validator := auth.NewJWTValidator(tokens)

	// Initialize Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	// Initialize services
	history := service.NewHistoryService(store, rooms, cfg.Cache.HistoryLimit)
	chatSvc := service.NewChatService(wsHub, presence.NewRegistry(), rooms, history, events)
	resolver := attachment.NewStorageResolver(blobs, cfg.Attachment)

	// Setup Gin router
	gin.SetMode(ginMode(cfg.Log.Level))
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewHTTPHandler(history, resolver, blobs, validator, cfg.Attachment.MaxUploadSize).RegisterRoutes(r)
	handler.NewWSHandler(wsHub, chatSvc, validator, cfg.WebSocket).RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("roomchat listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	// Stopping the hub closes every connection, which ends the handlers.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("roomchat stopped")
}

func newMessageStore(cfg config.StoreConfig) (repository.MessageStore, error) {
	ids, err := idgen.New(cfg.IDGenerator)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "", "gorm":
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewGormMessageRepository(db, ids)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "cassandra":
		repo, err := repository.NewCassandraMessageRepository(cfg.Cassandra, ids)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func newRoomCache(cfg config.CacheConfig, rdb *redis.Client) roomCache {
	opts := cache.Options{
		Prefix:      cfg.Prefix,
		TTL:         cfg.TTL,
		PresenceTTL: cfg.PresenceTTL,
		Limit:       cfg.HistoryLimit,
		MaxRooms:    cfg.MaxRooms,
	}
	if cfg.Driver == "redis" && rdb != nil {
		return cache.NewRedisRoomCache(rdb, opts)
	}
	return cache.NewMemoryRoomCache(opts)
}

func ginMode(level string) string {
	if pkglog.ParseLevel(level) <= zerolog.DebugLevel {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}
