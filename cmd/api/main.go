package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/config"
	"github.com/mri-lab/mri-console/internal/handler"
	chatHandler "github.com/mri-lab/mri-console/internal/handler/chat"
	"github.com/mri-lab/mri-console/internal/handler/ws"
	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/service/analysis"
	"github.com/mri-lab/mri-console/internal/service/auth"
	"github.com/mri-lab/mri-console/internal/service/chat"
	"github.com/mri-lab/mri-console/internal/service/reconstruction"
	"github.com/mri-lab/mri-console/internal/service/training"
	"github.com/mri-lab/mri-console/internal/service/tts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		exitf("failed to load configuration: %v", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		exitf("failed to build logger: %v", err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	authSvc, err := auth.NewService(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		TTL:      cfg.Auth.TokenTTL,
		AdminKey: cfg.Auth.AdminKey,
	})
	if err != nil {
		log.Fatal("failed to initialize auth service", zap.Error(err))
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET 未配置，使用随机密钥，重启后令牌失效")
	}

	var synth chatHandler.Synthesizer = tts.Silent{}
	if cfg.Speech.Enabled {
		v, err := tts.NewVolcengine(tts.Config{
			AppID:       cfg.Speech.AppID,
			AccessToken: cfg.Speech.AccessToken,
			Voice:       cfg.Speech.Voice,
			ResourceID:  cfg.Speech.ResourceID,
			URL:         cfg.Speech.URL,
			Speed:       cfg.Speech.Speed,
			Timeout:     cfg.Speech.Timeout,
		}, log)
		if err != nil {
			log.Fatal("failed to initialize TTS client", zap.Error(err))
		}
		synth = v
		log.Info("volcengine TTS enabled", zap.String("voice", cfg.Speech.Voice))
	}

	router := handler.NewRouter(handler.Services{
		Auth:           authSvc,
		Chat:           chat.NewService(nil),
		Reconstruction: reconstruction.NewService(),
		Analysis:       analysis.NewService(),
		Training:       training.NewSimulator(),
		TTS:            synth,
		Hub:            ws.NewHub(log),
		Metrics:        cfg.Metrics.Enabled,
		Logger:         log,
	})

	startServer(ctx, log, cfg.Server, router)
}

func startServer(ctx context.Context, log *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("MRI backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// exitf reports errors that happen before the logger exists.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
