package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "sugang/docs" // swagger docs

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"sugang/internal/auth"
	"sugang/internal/cache"
	"sugang/internal/config"
	"sugang/internal/db"
	"sugang/internal/handler"
	"sugang/internal/logger"
	"sugang/internal/metrics"
	"sugang/internal/repository"
	"sugang/internal/router"
	"sugang/internal/service"
	"sugang/internal/session"
)

// @title Sugang Trainer API
// @version 1.0
// @description Mock course registration trainer. Build a wish-list, then practise registering against a failure rate that rises over time.
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the token from /login. The session cookie works too.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	gormDB, err := db.NewMySQL(cfg.MySQL, zlog)
	if err != nil {
		zlog.Fatal("database init", zap.Error(err))
	}
	if err := db.Migrate(gormDB, cfg.MySQL.ResetOnStart, zlog); err != nil {
		zlog.Fatal("migrate", zap.Error(err))
	}

	cacheClient := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, zlog)
	defer cacheClient.Close()
	if err := cacheClient.Ping(context.Background()); err != nil {
		// Sessions cannot be kept without Redis; logins will fail until it is back.
		zlog.Warn("redis unavailable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	metrics.Init()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	courseRepo := repository.NewCourseRepository(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret)
	sessions := session.NewStore(cacheClient.Strict(), nil)

	// Initialize services
	userService := service.NewUserService(userRepo, cacheClient)
	authService := service.NewAuthService(userRepo, jwtService, sessions)
	settingService := service.NewSettingService(courseRepo, userService, nil, zlog)
	sugangService := service.NewSugangService(courseRepo, userService, nil, service.DefaultRandom, zlog)

	e := echo.New()
	e.HideBanner = true

	router.Register(e, cfg, zlog, router.Handlers{
		Auth:     handler.NewAuthHandler(authService, cfg.Server.SecureCookie, zlog),
		Setting:  handler.NewSettingHandler(settingService, sessions, zlog),
		Sugang:   handler.NewSugangHandler(sugangService, sessions, zlog),
		User:     handler.NewUserHandler(userService, zlog),
		Sessions: sessions,
		Health: func(c echo.Context) error {
			sqlDB, err := gormDB.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(c.Request().Context()); err != nil {
				return err
			}
			return cacheClient.Ping(c.Request().Context())
		},
	})

	zlog.Info("swagger documentation available", zap.String("url", swaggerURL(cfg.Server.SwaggerHost, cfg.Server.Port)))

	go func() {
		addr := ":" + cfg.Server.Port
		zlog.Info("server starting", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown", zap.Error(err))
	}
	zlog.Info("server stopped")
}

// swaggerURL builds the docs URL. host may already include a scheme.
func swaggerURL(host, port string) string {
	if host == "" {
		return "http://localhost:" + port + "/swagger/index.html"
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/") + "/swagger/index.html"
	}
	return "http://" + host + "/swagger/index.html"
}
