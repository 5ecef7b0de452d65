package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"realtime-service/internal/config"
	"realtime-service/internal/db"
	"realtime-service/internal/delivery"
	"realtime-service/internal/handlers"
	"realtime-service/internal/identity"
	"realtime-service/internal/middleware"
	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
	"realtime-service/internal/rabbitmq"
	"realtime-service/internal/receipts"
	registrypkg "realtime-service/internal/registry"
	"realtime-service/internal/repositories"
	"realtime-service/internal/telemetry"
	"realtime-service/internal/typing"
	"realtime-service/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange+".audit")
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.realtime", cfg.ServiceName, cfg.Environment)

	messageRepo := repositories.NewMessageRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)

	verifier := identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	var lastSeen presence.LastSeenStore = presence.NewMemoryLastSeenStore()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		lastSeen = presence.NewRedisLastSeenStore(redis.NewClient(opts), 30*24*time.Hour)
		log.Println("last-seen store backed by redis")
	}

	registry := registrypkg.New()
	tracker := presence.NewTracker(registry, conversationRepo, lastSeen)

	debouncer := typing.NewDebouncer(cfg.TypingIdleWindow, func(senderID, recipientID int64, isTyping bool) {
		registry.SendToUser(recipientID, models.TypingEvent(senderID, isTyping))
	})

	pipeline := delivery.NewPipeline(messageRepo, conversationRepo, registry, debouncer)
	reconciler := receipts.NewReconciler(messageRepo, conversationRepo, registry)

	wsHandler := ws.NewHandler(registry, tracker, debouncer, pipeline, reconciler, verifier, audit, cfg.AuthGracePeriod, cfg.ReconnectHint)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, tracker, cfg.HistoryLimit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.GET("/conversations/:counterpart_id/messages", authMiddleware, conversationHandler.GetMessages)
	router.POST("/conversations/:counterpart_id/recompute", authMiddleware, conversationHandler.RecomputeSummary)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{Addr: cfg.Addr, Handler: router}

	go func() {
		log.Printf("listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	// Drain every live connection with a reconnect hint before closing.
	for _, userID := range registry.ListOnline() {
		for _, conn := range registry.Connections(userID) {
			if drainer, ok := conn.(interface{ Drain() }); ok {
				drainer.Drain()
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
