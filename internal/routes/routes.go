package routes

import (
	"context"
	"errors"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/config"
	"github.com/MuhammadKashif10/onlyif-backend/internal/handlers"
	"github.com/MuhammadKashif10/onlyif-backend/internal/middleware"
	"github.com/MuhammadKashif10/onlyif-backend/internal/repository"
	"github.com/MuhammadKashif10/onlyif-backend/internal/services"
	chatws "github.com/MuhammadKashif10/onlyif-backend/internal/websocket"
	"github.com/go-redis/redis/v8"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies are the process-wide resources the routes are built on.
// Redis is optional; without it the live channel stays in-process.
type Dependencies struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// RegisterRoutes wires repositories, services and handlers onto app and
// starts the background workers, which stop when ctx is cancelled.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, deps Dependencies) error {
	if deps.DB == nil {
		return errors.New("database pool is required")
	}

	userRepo := repository.NewUserRepository(deps.DB)
	notificationRepo := repository.NewNotificationRepository(deps.DB)
	conversationRepo := repository.NewConversationRepository(deps.DB)

	notificationService := services.NewNotificationService(notificationRepo, userRepo)
	chatService := services.NewChatService(deps.DB, conversationRepo, userRepo, cfg.SellerRestrictedMode)

	hubOptions := []chatws.HubOption{chatws.WithOfflineMirror(notificationService)}
	if deps.Redis != nil {
		hubOptions = append(hubOptions,
			chatws.WithBroker(chatws.NewRedisBroker(deps.Redis)),
			chatws.WithPresence(chatws.NewRedisPresence(deps.Redis, cfg.PresenceTTL), cfg.PresenceTTL/2),
		)
	}
	chatHub := chatws.NewHub(hubOptions...)
	go func() {
		if err := chatHub.Run(ctx); err != nil {
			logrus.WithError(err).Error("chat hub stopped")
		}
	}()

	services.NewNotificationPurger(notificationService, cfg.NotificationPurgeCron).Start(ctx)

	notificationHandler := handlers.NewNotificationHandler(notificationService)
	chatHandler := handlers.NewChatHandler(ctx, chatService, chatHub)

	app.Get("/health", func(c *fiber.Ctx) error {
		pingCtx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(pingCtx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	authRequired := middleware.AuthRequired(cfg.JWTSecret)

	// The live channel authenticates from ?token= and must be registered
	// ahead of the header-authenticated /v1 group.
	api.Get("/v1/ws",
		middleware.QueryTokenAuth(cfg.JWTSecret),
		chatHandler.WebSocketUpgrade,
		websocket.New(chatHandler.HandleWebSocket),
	)

	handlers.RegisterNotificationRoutes(api.Group("/notifications", authRequired), notificationHandler)

	chatting := api.Group("/chatting", authRequired)
	chatting.Post("", chatHandler.SendMessage)
	chatting.Get("/:counterpartyId", chatHandler.GetCounterpartyMessages)

	authProtected := api.Group("/v1", authRequired)

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)

	return nil
}
