package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"neon_checkin_miniapp/internal/api"
	"neon_checkin_miniapp/internal/cache"
	"neon_checkin_miniapp/internal/mirror"
	"neon_checkin_miniapp/internal/repository"
	"neon_checkin_miniapp/internal/service"
	"neon_checkin_miniapp/pkg/auth"
	"neon_checkin_miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	var loc *time.Location
	if cfg.CheckinTimezone != "" {
		loc, err = time.LoadLocation(cfg.CheckinTimezone)
		if err != nil {
			zapLogger.Fatal("Failed to load checkin timezone",
				zap.String("zone", cfg.CheckinTimezone),
				zap.Error(err))
		}
	}

	c := cache.New()
	m := mirror.Open(cfg.MirrorPath)

	userService := service.NewUserService(repo, c, m)
	checkinService := service.NewCheckinService(userService, repo, c, loc)
	referralService := service.NewReferralService(userService, repo, c)

	telegramAuth := auth.NewTelegramAuth(cfg.TelegramAuth.TelegramBotToken, cfg.TelegramAuth.DebugMode)

	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
	config.AllowHeaders = []string{"*"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour

	router.Use(cors.New(config))

	hub := api.NewEventHub()

	a := router.Group("/api/v1")
	api.NewUserRoutes(a, userService, telegramAuth)
	api.NewCheckinRoutes(a, checkinService, telegramAuth, hub)
	api.NewReferralRoutes(a, referralService, telegramAuth, hub)
	api.NewEventRoutes(a, hub, telegramAuth)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	zapLogger.Info("Starting server", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}
