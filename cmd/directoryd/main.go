package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inventor7/p2p/internal/api"
	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/directory"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

func newEngine(cfg *config.Directory, logger *zap.Logger, svc *directory.Service) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(api.CORSMiddleware(nil))
	engine.Use(api.LoggerMiddleware(logger))
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	directory.RegisterRoutes(engine, svc)
	return engine
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Directory, logger *zap.Logger, svc *directory.Service, engine *gin.Engine) {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.RESTPort),
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go svc.Run(context.Background())
			go func() {
				logger.Info("directory listening", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("directory server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			svc.Stop()
			return server.Shutdown(ctx)
		},
	})
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: .env file not found: %v", err)
	}

	app := fx.New(
		fx.Provide(
			newLogger,
			config.NewDirectory,
			directory.NewService,
			newEngine,
		),
		fx.Invoke(registerLifecycle),
	)

	app.Run()
}
