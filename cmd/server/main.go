package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/config"
	"github.com/MuhammadKashif10/onlyif-backend/internal/database"
	"github.com/MuhammadKashif10/onlyif-backend/internal/logging"
	"github.com/MuhammadKashif10/onlyif-backend/internal/routes"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.IsDevelopment())

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		logrus.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logrus.Info("REDIS_URL not set, live channel runs in-process only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName:      "onlyif-backend",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: strings.Join([]string{
			fiber.MethodGet, fiber.MethodPost, fiber.MethodPatch, fiber.MethodDelete, fiber.MethodOptions,
		}, ","),
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))

	// Routes
	if err := routes.RegisterRoutes(ctx, app, cfg, routes.Dependencies{
		DB:    database.DB,
		Redis: redisClient,
	}); err != nil {
		logrus.Fatalf("Failed to register routes: %v", err)
	}

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	// 4. Start Server
	logrus.Infof("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.Fatalf("Server failed to start: %v", err)
	}
}
