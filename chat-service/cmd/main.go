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
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/broadcast"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/cache"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/config"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/handler"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/idgen"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/service"
	"github.com/weiawesome/wes-io-chat/pkg/database"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-service",
		InstanceID:  instanceID,
	})
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := repository.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	userRepo := repository.NewGormUserRepository(db)
	conversationRepo := repository.NewGormConversationRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional; without it the instance runs standalone.
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
	}
	requireRedis := func(component string) {
		if redisClient == nil {
			logger.Fatal().Str("component", component).Msg("redis driver selected but redis.address is empty")
		}
	}

	// Hub
	wsHub := hub.NewHub()
	go wsHub.Run(ctx)

	// Broadcast dispatcher
	var dispatcher broadcast.Dispatcher
	switch strings.ToLower(cfg.Broadcast.Driver) {
	case pubsub.DriverRedis, pubsub.DriverMemory:
		if strings.EqualFold(cfg.Broadcast.Driver, pubsub.DriverRedis) {
			requireRedis("broadcast")
		}
		bus, err := pubsub.Open(cfg.Broadcast.Driver, redisClient)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open fan-out bus")
		}
		defer bus.Close()
		channel := pubsub.ChatFanoutChannel(cfg.Broadcast.ChannelPrefix)

		subscriber := broadcast.NewSubscriber(bus, channel, wsHub)
		go subscriber.Run(ctx)
		select {
		case <-subscriber.Ready():
		case <-time.After(10 * time.Second):
			logger.Fatal().Str(pkglog.FieldChannel, channel).Msg("fan-out subscription did not become ready")
		}
		defer func() { <-subscriber.Done() }()

		dispatcher = broadcast.NewRedisRelay(bus, channel, instanceID)
		logger.Info().Str(pkglog.FieldChannel, channel).Str("driver", cfg.Broadcast.Driver).Msg("broadcast relay enabled")
	case "local", "":
		dispatcher = broadcast.NewLocal(wsHub)
	default:
		logger.Fatal().Str("driver", cfg.Broadcast.Driver).Msg("unsupported broadcast driver")
	}

	// Presence counter
	var counter presence.Counter
	var redisCounter *presence.RedisCounter
	switch strings.ToLower(cfg.Presence.Driver) {
	case "redis":
		requireRedis("presence")
		redisCounter = presence.NewRedisCounter(redisClient, cfg.Presence.Prefix, instanceID, cfg.Presence.KeyTTL, cfg.Presence.HeartbeatInterval)
		defer func() {
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if err := redisCounter.Close(releaseCtx); err != nil {
				logger.Warn().Err(err).Msg("failed to release presence counts")
			}
		}()
		counter = redisCounter
	case "memory", "":
		counter = presence.NewMemoryCounter()
	default:
		logger.Fatal().Str("driver", cfg.Presence.Driver).Msg("unsupported presence driver")
	}

	// User cache
	var userCache cache.UserCache = cache.NopUserCache{}
	if cfg.Cache.Enabled && redisClient != nil {
		userCache = cache.NewRedisUserCache(redisClient, cfg.Cache.Prefix)
	}

	// Message event stream
	var producer kafka.MessageProducer = kafka.NoopProducer{}
	if cfg.Kafka.Brokers != "" {
		confluent, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		producer = confluent
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}
	defer producer.Close()

	// Token validation
	tokens, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessDuration, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize jwt manager")
	}

	// Services
	directory := service.NewUserDirectory(userRepo, userCache, cfg.Cache.TTL)
	resolver := service.NewConversationResolver(conversationRepo)
	typing := service.NewTypingCoordinator(conversationRepo, dispatcher)
	pipeline := service.NewMessagePipeline(
		conversationRepo, messageRepo, directory, resolver, dispatcher, typing,
		idgen.NewULIDGenerator(), producer, cfg.Chat.MaxContentLength,
	)
	receipts := service.NewReceiptCoordinator(conversationRepo, messageRepo, dispatcher, producer)
	tracker := presence.NewTracker(counter, userRepo, dispatcher)
	if redisCounter != nil {
		redisCounter.OnStale(tracker.ReleaseStale)
		redisCounter.StartHeartbeat(ctx)
	}
	chatSvc := service.NewChatService(wsHub, conversationRepo, tracker, pipeline, typing, receipts)
	querySvc := service.NewQueryService(userRepo, conversationRepo, messageRepo, resolver, tracker, cfg.Chat.HistoryPageSize, cfg.Chat.HistoryMaxPage)

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewHandler(querySvc, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(r)
	handler.NewWSHandler(wsHub, service.NewAuthenticator(tokens, directory), chatSvc, cfg.WebSocket).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("db_driver", cfg.Database.Driver).
			Str("broadcast", cfg.Broadcast.Driver).
			Str("presence", cfg.Presence.Driver).
			Msg("chat-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	// Hijacked WebSocket connections are not covered by Shutdown.
	wsHub.CloseAll()
	waitForDisconnects(shutdownCtx, wsHub)
	cancel()

	logger.Info().Msg("chat-service stopped")
}

// waitForDisconnects lets read loops finish their disconnect path so presence
// is released before the process exits.
func waitForDisconnects(ctx context.Context, h *hub.Hub) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for h.ClientCount() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
