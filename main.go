package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"church-chat-service/internal/auth"
	"church-chat-service/internal/config"
	"church-chat-service/internal/db"
	"church-chat-service/internal/directory"
	"church-chat-service/internal/groupsync"
	"church-chat-service/internal/handlers"
	"church-chat-service/internal/media"
	"church-chat-service/internal/middleware"
	"church-chat-service/internal/notify"
	"church-chat-service/internal/observability"
	"church-chat-service/internal/repositories"
	"church-chat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var log *zap.Logger
	if cfg.Server.Environment == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Server.Environment)
	if err != nil {
		log.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	database, err := db.Connect(cfg.DB.DSN, log)
	if err != nil {
		log.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	mediaStore, err := media.NewDiskStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		log.Fatal("failed to init media store", zap.Error(err))
	}

	notifier := notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	defer notifier.Close()

	dir := directory.NewSQLDirectory(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)

	syncEngine := groupsync.New(groupRepo, dir, log)

	hub := ws.NewHub(log, cfg.Calls.InviteTTL)
	hub.StartJanitor(ctx)

	verifier := auth.NewVerifier(cfg.JWT.Secret)

	groupHandler := handlers.NewGroupHandler(groupRepo, dir, syncEngine, hub, log)
	messageHandler := handlers.NewMessageHandler(groupRepo, messageRepo, reactionRepo, dir, hub, mediaStore, notifier, log)
	directHandler := handlers.NewDirectHandler(messageRepo, dir, hub, mediaStore, notifier, log)
	wsHandler := ws.NewHandler(hub, groupRepo, verifier, log)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("church-chat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static(cfg.Media.BaseURL, cfg.Media.Dir)

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/groups", authMiddleware, groupHandler.ListGroups)
	router.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	router.POST("/groups/:group_id/members", authMiddleware, groupHandler.AddMember)
	router.DELETE("/groups/:group_id/members/:user_id", authMiddleware, groupHandler.RemoveMember)
	router.PATCH("/groups/:group_id/members/:user_id/role", authMiddleware, groupHandler.UpdateMemberRole)
	router.POST("/groups/:group_id/leave", authMiddleware, groupHandler.LeaveGroup)

	router.GET("/groups/:group_id/messages", authMiddleware, messageHandler.ListGroupMessages)
	router.POST("/groups/:group_id/messages", authMiddleware, messageHandler.SendGroupMessage)
	router.DELETE("/groups/:group_id/messages/:message_id", authMiddleware, messageHandler.DeleteGroupMessage)
	router.POST("/messages/:message_id/reactions", authMiddleware, messageHandler.ToggleReaction)

	router.GET("/direct", authMiddleware, directHandler.ListConversations)
	router.GET("/direct/:user_id", authMiddleware, directHandler.GetThread)
	router.POST("/direct/:user_id", authMiddleware, directHandler.SendDirect)

	router.GET("/ws", wsHandler.Handle)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
}
