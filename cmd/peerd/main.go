package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inventor7/p2p/internal/api"
	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/peerserver"
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

func newEngine(logger *zap.Logger, srv *peerserver.Server) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(api.CORSMiddleware(nil))
	engine.Use(api.LoggerMiddleware(logger))
	peerserver.RegisterRoutes(engine, srv)
	return engine
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Peer, logger *zap.Logger, srv *peerserver.Server, engine *gin.Engine) {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.RESTPort),
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("peer server listening", zap.String("addr", server.Addr), zap.String("peer_id", cfg.PeerID))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("peer server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Logging out disconnects the directory session, which stops
			// its heartbeat task.
			if err := srv.Logout(ctx); err != nil {
				logger.Warn("could not log out of directory on shutdown", zap.Error(err))
			}
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
			config.NewPeer,
			peerserver.NewAuthManager,
			peerserver.NewFileManager,
			peerserver.New,
			newEngine,
		),
		fx.Invoke(registerLifecycle),
	)

	app.Run()
}
