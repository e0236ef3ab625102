package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-backend/internal/auth"
	"chat-backend/internal/chats"
	"chat-backend/internal/config"
	"chat-backend/internal/db"
	"chat-backend/internal/fanout"
	grpcserver "chat-backend/internal/grpc"
	"chat-backend/internal/handlers"
	"chat-backend/internal/identity"
	"chat-backend/internal/kafka"
	"chat-backend/internal/logging"
	"chat-backend/internal/media"
	"chat-backend/internal/messages"
	"chat-backend/internal/middleware"
	"chat-backend/internal/notify"
	"chat-backend/internal/observability"
	"chat-backend/internal/rabbitmq"
	"chat-backend/internal/repositories"
	"chat-backend/internal/repositories/memory"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/ws"
)

const (
	shutdownTimeout    = 15 * time.Second
	notifyDrainTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Development(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	engine := fanout.NewEngine(fanout.Options{
		QueueSize:  cfg.Fanout.QueueSize,
		GapTimeout: cfg.Fanout.GapTimeout,
		Logger:     logger,
	})
	defer engine.Close()
	events, err := newEventPublisher(ctx, cfg, engine, logger)
	if err != nil {
		return err
	}

	sink, closeSink := newSink(cfg, publisher, logger)
	defer closeSink()
	dispatcher := notify.NewDispatcher(store.Users(), sink, notify.Options{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
	}, logger)
	dispatcher.Start(ctx)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), notifyDrainTimeout)
		defer cancel()
		_ = dispatcher.Stop(drainCtx)
	}()
	engine.OnEvent(dispatcher.Listen)

	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	idSvc := identity.NewService(store.Users(), tokens, events, logger)
	registry := chats.NewRegistry(store.Chats(), store.Users(), events, logger)
	msgLog := messages.NewLog(store, events, registry, cfg.Media.MaxFileSize, logger)

	var uploader media.Uploader
	if cfg.Media.Endpoint != "" {
		minioStore, err := media.NewMinioStore(ctx, media.Options{
			Endpoint:      cfg.Media.Endpoint,
			AccessKey:     cfg.Media.AccessKey,
			SecretKey:     cfg.Media.SecretKey,
			Bucket:        cfg.Media.Bucket,
			UseSSL:        cfg.Media.UseSSL,
			PublicBaseURL: cfg.Media.PublicBaseURL,
		}, logger)
		if err != nil {
			return fmt.Errorf("init media store: %w", err)
		}
		uploader = minioStore
	} else {
		logger.Warn("media store disabled: no endpoint configured")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, logger)
	go limiter.Run(ctx)
	hub := ws.NewHub(logger)

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_connections": hub.Count("")})
	})

	authMiddleware := middleware.AuthMiddleware(tokens)
	handlers.Routes{
		Users: handlers.NewUserHandler(idSvc, logger),
		Chats: handlers.NewChatHandler(registry, msgLog, audit, logger),
		Media: handlers.NewMediaHandler(uploader, cfg.Media.MaxFileSize, logger),
	}.Register(router, authMiddleware, limiter.Handler())
	ws.NewHandler(engine, msgLog, registry, idSvc, hub, logger).Register(router, authMiddleware)
	handlers.RegisterDebugRoutes(router, audit, engine, cfg.Development())

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := grpcserver.NewServer(cfg.ServiceName, logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	grpcSrv.Stop(shutdownCtx)
	hub.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Store, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	database, err := db.Connect(ctx, cfg.Store.DSN, db.Options{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	return repositories.NewPostgresStore(database), func() { _ = database.Close() }, nil
}

// newEventPublisher returns the engine itself, or a Redis bridge in front of it when configured.
func newEventPublisher(ctx context.Context, cfg *config.Config, engine *fanout.Engine, logger *zap.Logger) (fanout.Publisher, error) {
	if cfg.Redis.Addr == "" {
		return engine, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	bridge := fanout.NewBridge(client, cfg.Redis.Channel, uuid.NewString(), engine, logger)
	go func() {
		defer client.Close()
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("fanout bridge stopped", zap.Error(err))
		}
	}()
	logger.Info("fanout bridge enabled", zap.String("channel", cfg.Redis.Channel))
	return bridge, nil
}

func newSink(cfg *config.Config, publisher rabbitmq.Publisher, logger *zap.Logger) (notify.Sink, func()) {
	switch cfg.Notify.Sink {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			logger.Warn("kafka sink selected without brokers, falling back to log sink")
			return notify.NewLogSink(logger), func() {}
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PushTopic)
		logger.Info("push notifications via kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", producer.Topic()))
		return notify.NewKafkaSink(producer), func() { _ = producer.Close() }
	case "amqp":
		return notify.NewAMQPSink(publisher, cfg.AMQP.PushRoutingKey), func() {}
	default:
		return notify.NewLogSink(logger), func() {}
	}
}
